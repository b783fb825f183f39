// Package config resolves the web UI's own runtime settings (listen port,
// file locations, restart command, logging, rate limits) from defaults, an
// optional YAML settings file, environment variables and CLI flags.
// CLI flags win over environment variables, which win over the settings file.
package config
