// Package shotinfo maintains the pipeline's shot info JSON file.
//
// The file holds a "shots" tree of per-shot metadata objects and a
// "shotRanges" tree of [frame_in, frame_out] pairs. Updates merge into the
// existing document so keys written by other pipeline tools survive.
package shotinfo
