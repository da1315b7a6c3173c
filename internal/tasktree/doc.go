// Package tasktree models the local task hierarchy shown to artists.
//
// Records fetched from the tracker are grouped into
// Project > Type > Sequence > Element > Task. A record without a sequence is
// grouped under its entity type name instead, so assets and shots share the
// same shape. Only task leaves carry a context identifier; only element nodes
// carry thumbnails.
package tasktree
