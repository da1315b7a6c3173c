package shotinfo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"kitsupub/internal/fileutil"
	"kitsupub/internal/services"
)

const (
	keyShots    = "shots"
	keyRanges   = "shotRanges"
	keyMetadata = "metadata"
)

// Shot identifies one shot and its frame range. Project may be empty, in
// which case entries are keyed by sequence directly.
type Shot struct {
	Project  string
	Sequence string
	Name     string
	In       int
	Out      int
}

func (s Shot) keys() []string {
	keys := make([]string, 0, 3)
	if p := strings.TrimSpace(s.Project); p != "" {
		keys = append(keys, p)
	}
	return append(keys, strings.TrimSpace(s.Sequence), strings.TrimSpace(s.Name))
}

func (s Shot) validate() error {
	if strings.TrimSpace(s.Sequence) == "" || strings.TrimSpace(s.Name) == "" {
		return services.Wrap(services.ErrValidation, "shotinfo", "update", "sequence and shot are required", nil)
	}
	if s.In > s.Out {
		return services.Wrap(services.ErrValidation, "shotinfo", "update", fmt.Sprintf("frame in %d is after frame out %d", s.In, s.Out), nil)
	}
	return nil
}

// Document is the decoded shot info file. Unknown keys are kept verbatim.
type Document map[string]any

// Load reads path. A missing or empty file yields an empty document.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Document{}, nil
		}
		return nil, fmt.Errorf("read shot info: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Document{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	doc := Document{}
	if err := dec.Decode(&doc); err != nil {
		return nil, services.Wrap(services.ErrValidation, "shotinfo", "load", path, err)
	}
	return doc, nil
}

// Range returns the stored [in, out] for shot, if present.
func (d Document) Range(shot Shot) (int, int, bool) {
	node, ok := lookup(d, keyRanges, shot.keys())
	if !ok {
		return 0, 0, false
	}
	pair, ok := node.([]any)
	if !ok || len(pair) != 2 {
		return 0, 0, false
	}
	in, okIn := toInt(pair[0])
	out, okOut := toInt(pair[1])
	return in, out, okIn && okOut
}

// HasShot reports whether shot has an entry under "shots".
func (d Document) HasShot(shot Shot) bool {
	_, ok := lookup(d, keyShots, shot.keys())
	return ok
}

// Merge records shot in the document. An existing shot entry keeps its
// metadata; the range is always replaced.
func (d Document) Merge(shot Shot) error {
	if err := shot.validate(); err != nil {
		return err
	}
	keys := shot.keys()
	parent, err := descend(d, keyShots, keys[:len(keys)-1])
	if err != nil {
		return err
	}
	leaf := keys[len(keys)-1]
	entry, ok := parent[leaf].(map[string]any)
	if !ok {
		entry = map[string]any{}
	}
	if _, ok := entry[keyMetadata].(map[string]any); !ok {
		entry[keyMetadata] = map[string]any{}
	}
	parent[leaf] = entry

	ranges, err := descend(d, keyRanges, keys[:len(keys)-1])
	if err != nil {
		return err
	}
	ranges[leaf] = []any{shot.In, shot.Out}
	return nil
}

// Update merges shot into the file at path, creating it when absent. The
// read-modify-write runs under an exclusive lock beside the file.
func Update(path string, shot Shot) error {
	if strings.TrimSpace(path) == "" {
		return services.Wrap(services.ErrConfiguration, "shotinfo", "update", "shot info path is empty", nil)
	}
	if err := shot.validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create shot info dir: %w", err)
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock shot info: %w", err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	doc, err := Load(path)
	if err != nil {
		return err
	}
	if err := doc.Merge(shot); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode shot info: %w", err)
	}
	return fileutil.WriteFileAtomic(path, data, 0o644)
}

func descend(doc Document, root string, keys []string) (map[string]any, error) {
	current, ok := doc[root].(map[string]any)
	if !ok {
		if existing, present := doc[root]; present && existing != nil {
			return nil, services.Wrap(services.ErrValidation, "shotinfo", "merge", fmt.Sprintf("%q is not an object", root), nil)
		}
		current = map[string]any{}
		doc[root] = current
	}
	for _, key := range keys {
		next, ok := current[key].(map[string]any)
		if !ok {
			if existing, present := current[key]; present && existing != nil {
				return nil, services.Wrap(services.ErrValidation, "shotinfo", "merge", fmt.Sprintf("%s.%s is not an object", root, key), nil)
			}
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	return current, nil
}

func lookup(doc Document, root string, keys []string) (any, bool) {
	var node any = map[string]any(doc)
	for _, key := range append([]string{root}, keys...) {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}
