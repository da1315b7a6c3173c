package tasktree

import "strings"

// Record is the snapshot of one remote task used for grouping.
type Record struct {
	ID             string
	Project        string
	EntityKind     string // "Asset", "Shot", ... from the task type
	Sequence       string // empty for entities outside a sequence
	EntityTypeName string // "Character", "Prop", ... substitutes for Sequence
	Entity         string
	TaskType       string
	PreviewFileID  string
}

// GroupKey is the sequence name, or the entity type name when the record
// has no sequence.
func (r Record) GroupKey() string {
	if seq := strings.TrimSpace(r.Sequence); seq != "" {
		return seq
	}
	return strings.TrimSpace(r.EntityTypeName)
}

// Valid reports whether the record carries every label the hierarchy needs.
func (r Record) Valid() bool {
	for _, v := range []string{r.ID, r.Project, r.EntityKind, r.GroupKey(), r.Entity, r.TaskType} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// Path returns the five labels the record groups under.
func (r Record) Path() []string {
	return []string{
		strings.TrimSpace(r.Project),
		strings.TrimSpace(r.EntityKind),
		r.GroupKey(),
		strings.TrimSpace(r.Entity),
		strings.TrimSpace(r.TaskType),
	}
}
