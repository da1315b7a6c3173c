// Package services defines shared utilities consumed by the tracker client,
// the synchronizer and the publish pipeline.
//
// Key responsibilities:
//   - Context helpers that stamp pass IDs, task IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (authentication, validation, external tool) with errors.Is.
package services
