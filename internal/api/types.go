package api

import (
	"kitsupub/internal/logging"
	"kitsupub/internal/tasksync"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// TreeNode is one level of the task hierarchy. ContextID is set on task
// leaves only; Thumbnail is a PNG data URI on element nodes that have one.
type TreeNode struct {
	Label     string     `json:"label"`
	Level     string     `json:"level"`
	ContextID string     `json:"context_id,omitempty"`
	Thumbnail string     `json:"thumbnail,omitempty"`
	Children  []TreeNode `json:"children"`
}

// TreeResponse wraps the last completed task tree.
type TreeResponse struct {
	Available bool       `json:"available"`
	Tasks     int        `json:"tasks"`
	Nodes     []TreeNode `json:"nodes"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// SessionStatus reports the tracker connection.
type SessionStatus struct {
	State string `json:"state"`
	Host  string `json:"host,omitempty"`
	User  string `json:"user,omitempty"`
}

// StatusResponse aggregates sidecar runtime information.
type StatusResponse struct {
	PID          int                `json:"pid"`
	Session      SessionStatus      `json:"session"`
	Sync         tasksync.State     `json:"sync"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// TriggerResponse acknowledges a started pass.
type TriggerResponse struct {
	PassID string `json:"pass_id"`
}

// CancelResponse reports whether a running pass was cancelled.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// TaskStatus is a workflow state a publish can move a task into.
type TaskStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Color     string `json:"color,omitempty"`
	IsDefault bool   `json:"is_default"`
}

// HistoryEntry is one recorded publish attempt.
type HistoryEntry struct {
	PublishID   string `json:"publish_id"`
	TaskID      string `json:"task_id"`
	TaskPath    string `json:"task_path,omitempty"`
	Status      string `json:"status,omitempty"`
	Media       string `json:"media,omitempty"`
	Outcome     string `json:"outcome"`
	PreviewID   string `json:"preview_id,omitempty"`
	PreviewPath string `json:"preview_path,omitempty"`
	Error       string `json:"error,omitempty"`
	FinishedAt  string `json:"finished_at,omitempty"`
}

// HistoryResponse wraps recent publish attempts, newest first.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// LogStreamResponse carries buffered log events and the cursor to resume from.
type LogStreamResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}
