// Package application wires the configuration stores, the environment
// overlay, the restart runner and the API router into an HTTP server, so the
// main package only deals with flags and process lifecycle.
package application
