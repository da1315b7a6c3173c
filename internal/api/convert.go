package api

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"

	"kitsupub/internal/deps"
	"kitsupub/internal/history"
	"kitsupub/internal/kitsu"
	"kitsupub/internal/tasktree"
)

// FromTree converts a task tree into transport nodes. A nil tree yields an
// unavailable response with no nodes.
func FromTree(tree *tasktree.Tree) TreeResponse {
	if tree == nil {
		return TreeResponse{Nodes: []TreeNode{}}
	}
	return TreeResponse{
		Available: true,
		Tasks:     len(tasktree.Leaves(tree.Roots)),
		Nodes:     fromNodes(tree.Roots),
	}
}

func fromNodes(nodes []*tasktree.Node) []TreeNode {
	out := make([]TreeNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, TreeNode{
			Label:     n.Label,
			Level:     n.Level.String(),
			ContextID: n.ContextID,
			Thumbnail: thumbnailURI(n.Thumbnail),
			Children:  fromNodes(n.Children),
		})
	}
	return out
}

func thumbnailURI(img image.Image) string {
	if img == nil {
		return ""
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

// FromTaskStatuses converts tracker statuses.
func FromTaskStatuses(statuses []kitsu.TaskStatus) []TaskStatus {
	out := make([]TaskStatus, len(statuses))
	for i, s := range statuses {
		out[i] = TaskStatus{ID: s.ID, Name: s.Name, ShortName: s.ShortName, Color: s.Color, IsDefault: s.IsDefault}
	}
	return out
}

// FromHistory converts stored publish attempts.
func FromHistory(entries []history.Entry) []HistoryEntry {
	out := make([]HistoryEntry, len(entries))
	for i, e := range entries {
		item := HistoryEntry{
			PublishID:   e.PublishID,
			TaskID:      e.TaskID,
			TaskPath:    e.TaskPath,
			Status:      e.Status,
			Media:       e.Media,
			Outcome:     string(e.Outcome),
			PreviewID:   e.PreviewID,
			PreviewPath: e.PreviewPath,
			Error:       e.Error,
		}
		if !e.FinishedAt.IsZero() {
			item.FinishedAt = e.FinishedAt.UTC().Format(dateTimeFormat)
		}
		out[i] = item
	}
	return out
}
