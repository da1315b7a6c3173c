// Package preflight provides readiness checks for the tracking server,
// external binaries, and filesystem paths that kitsupub depends on.
//
// These checks run in two contexts:
//   - The publish and plate commands call RunAll before doing any work so a
//     missing ffmpeg or unwritable staging directory fails fast.
//   - The CLI "kitsupub status" command and the sidecar /api/status route use
//     the individual checks to display health.
//
// Checks for optional settings are skipped when the setting is empty.
package preflight
