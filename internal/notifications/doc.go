// Package notifications delivers publish and failure events via ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers can publish unconditionally. The [notifications] publish and errors
// switches suppress whole event families without touching call sites.
package notifications
