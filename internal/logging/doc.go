// Package logging assembles structured slog loggers and formatting helpers used
// across kitsupub.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so sync and publish code can tag
// log lines with pass IDs, task IDs, stages, and correlation IDs. A StreamHub
// keeps recent records in memory for the sidecar log feed. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
