// Package api serves the local sidecar DCC plugins use instead of embedding a
// tracker client of their own.
//
// Routes (all JSON, bearer-token protected when paths.api_token is set):
//
//	GET  /api/status        session, synchronizer state, dependency checks
//	POST /api/sync?mine=    trigger a task-tree pass (202 with its pass ID)
//	POST /api/sync/cancel   cancel the running pass
//	GET  /api/tree          last completed tree, thumbnails as PNG data URIs
//	GET  /api/statuses      task statuses a publish can set
//	GET  /api/history       recent publish attempts (?task=, ?limit=)
//	GET  /api/logs          buffered log events (?since=, ?limit=, ?tail=1)
//	GET  /ws                websocket stream of "sync", "tree" and "log" messages
//	GET  /metrics           Prometheus metrics
//
// The tree endpoint only ever returns a completed pass. Cancelled and failed
// passes are visible through /api/status and the event stream.
package api
