// Package kitsu is a small client for the production-tracking server's REST
// API.
//
// It covers the calls kitsupub needs: login and token checks, listing open
// projects, sequences and tasks, fetching task detail, resolving task
// statuses and types by name, posting comments, uploading previews, and
// downloading preview thumbnails. Every call takes a context, sends the
// bearer token installed by Login or SetToken, and returns *APIError for
// non-2xx responses. APIError unwraps to the services markers so callers can
// classify failures with errors.Is. The client never retries.
package kitsu
