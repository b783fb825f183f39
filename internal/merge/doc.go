// Package merge builds the effective TrendRadar configuration served to API
// clients (file contents plus environment overlays) and persists client
// edits without ever writing environment-controlled values to disk.
package merge
