// Package api exposes the configuration REST endpoints consumed by the web UI.
// Every response uses the {success, message, data} envelope.
package api
