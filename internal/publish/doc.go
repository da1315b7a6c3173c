// Package publish sends review media to a tracker task.
//
// A publish resolves the target status, encodes the media into an H.264
// preview, posts the artist's comment with a file footer, attaches the
// preview and optionally promotes it to the entity's main preview. Every
// attempt lands in the history database and, when configured, in ntfy.
package publish
