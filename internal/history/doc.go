// Package history records every publish attempt in a local SQLite database so
// artists can review what was sent, when, and why an attempt failed.
package history
