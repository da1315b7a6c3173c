package tasktree

import (
	"fmt"
	"strings"
)

// Builder groups records into Project > Type > Sequence > Element > Task.
// Nodes appear in first-seen order. A Builder is not safe for concurrent use;
// it belongs to the goroutine running the pass.
type Builder struct {
	roots []*Node
	index map[string]*Node
	tasks int
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{index: make(map[string]*Node)}
}

// Add places the record in the hierarchy and returns its element node.
// created reports whether the element node was new, which is when callers
// fetch its thumbnail. Invalid records are rejected with an error.
func (b *Builder) Add(r Record) (element *Node, created bool, err error) {
	if !r.Valid() {
		return nil, false, fmt.Errorf("task %q is missing hierarchy labels", r.ID)
	}
	path := r.Path()

	var parent *Node
	levels := []Level{LevelProject, LevelType, LevelSequence, LevelElement}
	for depth, level := range levels {
		key := strings.Join(path[:depth+1], "\x00")
		node, ok := b.index[key]
		if !ok {
			node = &Node{Label: path[depth], Level: level}
			if parent == nil {
				b.roots = append(b.roots, node)
			} else {
				parent.Children = append(parent.Children, node)
			}
			b.index[key] = node
			if level == LevelElement {
				created = true
			}
		}
		parent = node
	}
	element = parent
	if element.previewFileID == "" {
		element.previewFileID = strings.TrimSpace(r.PreviewFileID)
	}

	element.Children = append(element.Children, &Node{
		Label:     path[4],
		Level:     LevelTask,
		ContextID: r.ID,
	})
	b.tasks++
	return element, created, nil
}

// Tasks returns the number of task leaves added so far.
func (b *Builder) Tasks() int {
	return b.tasks
}

// Tree finalizes the builder. The builder must not be used afterwards.
func (b *Builder) Tree(sorted bool) *Tree {
	roots := b.roots
	if roots == nil {
		roots = []*Node{}
	}
	if sorted {
		SortByLabel(roots)
	}
	b.roots = nil
	b.index = nil
	return &Tree{Roots: roots, Complete: true}
}

// Build groups records in one call, skipping invalid ones. It returns the
// tree and the number of skipped records.
func Build(records []Record, sorted bool) (*Tree, int) {
	b := NewBuilder()
	skipped := 0
	for _, r := range records {
		if _, _, err := b.Add(r); err != nil {
			skipped++
		}
	}
	return b.Tree(sorted), skipped
}
