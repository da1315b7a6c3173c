package tasktree

import (
	"image"
	"sort"
	"strings"
)

// Level identifies the depth of a node in the task hierarchy.
type Level int

const (
	LevelProject Level = iota
	LevelType
	LevelSequence
	LevelElement
	LevelTask
)

func (l Level) String() string {
	switch l {
	case LevelProject:
		return "project"
	case LevelType:
		return "type"
	case LevelSequence:
		return "sequence"
	case LevelElement:
		return "element"
	case LevelTask:
		return "task"
	default:
		return "unknown"
	}
}

// PathSeparator joins node labels in display paths.
const PathSeparator = " / "

// Node is one level of the locally built hierarchy. ContextID is non-empty
// only on task leaves. Thumbnail is only ever set on element nodes.
type Node struct {
	Label     string
	Level     Level
	ContextID string
	Thumbnail image.Image
	Children  []*Node

	// previewFileID is the element's preview used for thumbnail fetches.
	previewFileID string
}

// PreviewFileID returns the preview identifier recorded for an element node.
func (n *Node) PreviewFileID() string {
	if n == nil {
		return ""
	}
	return n.previewFileID
}

// Selectable reports whether the node is a publish target.
func (n *Node) Selectable() bool {
	return n != nil && n.ContextID != ""
}

func (n *Node) child(label string) *Node {
	for _, c := range n.Children {
		if c.Label == label {
			return c
		}
	}
	return nil
}

// Tree is the result of a synchronization pass. Complete is false for any
// tree that was abandoned part way through a pass.
type Tree struct {
	Roots    []*Node
	Complete bool
}

// Walk visits every node depth-first in child order. Returning false from fn
// stops descent into that node's children.
func Walk(nodes []*Node, fn func(path []string, n *Node) bool) {
	var visit func(prefix []string, n *Node)
	visit = func(prefix []string, n *Node) {
		path := append(append([]string(nil), prefix...), n.Label)
		if !fn(path, n) {
			return
		}
		for _, c := range n.Children {
			visit(path, c)
		}
	}
	for _, n := range nodes {
		visit(nil, n)
	}
}

// CountNodes counts all nodes reachable from roots.
func CountNodes(roots []*Node) int {
	count := 0
	Walk(roots, func([]string, *Node) bool {
		count++
		return true
	})
	return count
}

// Leaves returns the task leaves in display order.
func Leaves(roots []*Node) []*Node {
	var out []*Node
	Walk(roots, func(_ []string, n *Node) bool {
		if len(n.Children) == 0 && n.Level == LevelTask {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Flatten returns every node keyed by its " / "-joined label path. When two
// leaves share a path (same task type twice on one element) the first wins.
func Flatten(roots []*Node) map[string]*Node {
	out := make(map[string]*Node)
	Walk(roots, func(path []string, n *Node) bool {
		key := strings.Join(path, PathSeparator)
		if _, ok := out[key]; !ok {
			out[key] = n
		}
		return true
	})
	return out
}

// FindByPath resolves labels from the roots downward.
func FindByPath(roots []*Node, labels ...string) *Node {
	if len(labels) == 0 {
		return nil
	}
	var current *Node
	for _, n := range roots {
		if n.Label == labels[0] {
			current = n
			break
		}
	}
	for _, label := range labels[1:] {
		if current == nil {
			return nil
		}
		current = current.child(label)
	}
	return current
}

// FindByContext returns the task leaf with the given context identifier and
// its label path.
func FindByContext(roots []*Node, contextID string) (*Node, []string) {
	if contextID == "" {
		return nil, nil
	}
	var found *Node
	var foundPath []string
	Walk(roots, func(path []string, n *Node) bool {
		if found != nil {
			return false
		}
		if n.ContextID == contextID {
			found = n
			foundPath = path
			return false
		}
		return true
	})
	return found, foundPath
}

// SortByLabel orders every level alphabetically (case-insensitive), keeping
// the relative order of equal labels.
func SortByLabel(roots []*Node) {
	sortLevel(roots)
}

func sortLevel(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return strings.ToLower(nodes[i].Label) < strings.ToLower(nodes[j].Label)
	})
	for _, n := range nodes {
		sortLevel(n.Children)
	}
}
