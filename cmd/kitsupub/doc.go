// Package main hosts the kitsupub CLI entrypoint and command graph.
//
// The Cobra command tree covers the whole artist workflow against the
// tracking server: logging in, browsing the task tree, publishing previews
// with review comments, exporting source plates into the pipeline folder
// layout, and running the local sidecar that DCC plugins talk to. The
// command context resolves configuration, the logger and the tracker session
// once per invocation so subcommands only deal with flags and output.
//
// New behaviour belongs in the internal packages first; commands here should
// stay thin translations from flags to those packages.
package main
