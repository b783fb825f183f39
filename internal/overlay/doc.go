// Package overlay holds the table of environment variables that override
// notification channel fields and resolves it against the environment.
package overlay
