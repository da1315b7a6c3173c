// Package logs reads kitsupub logs for the `kitsupub logs` command.
//
// A running sidecar is queried through its /api/logs feed; when none is
// reachable the log file in paths.log_dir is tailed instead.
package logs
