// Package storage reads and writes the configuration and keyword files.
// Writes go through a temp file and rename so a crash never leaves a
// truncated file behind.
package storage
