// Package restart restarts the TrendRadar container through an external
// command so configuration changes take effect.
package restart
