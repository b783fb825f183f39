// Package document models the TrendRadar configuration file as an ordered
// tree of yaml.v3 nodes. It converts between YAML on disk and JSON on the
// wire without reordering keys, which plain Go maps cannot guarantee.
package document
