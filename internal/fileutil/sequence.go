package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var frameSuffix = regexp.MustCompile(`^(.*?)(\d+)(\.[A-Za-z0-9]+)$`)

// Frame is one member of an image sequence.
type Frame struct {
	Path   string
	Number int
}

// ParseFrame splits a file name into its prefix, frame number and extension.
// ok is false when the name has no trailing frame number.
func ParseFrame(name string) (prefix string, number int, ext string, ok bool) {
	m := frameSuffix.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return "", 0, "", false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, "", false
	}
	return m[1], n, m[3], true
}

// ScanSequence returns every file in the directory of member that shares its
// prefix and extension, ordered by frame number. A member without a frame
// number yields just itself.
func ScanSequence(member string) ([]Frame, error) {
	prefix, _, ext, ok := ParseFrame(member)
	if !ok {
		if _, err := os.Stat(member); err != nil {
			return nil, err
		}
		return []Frame{{Path: member}}, nil
	}
	dir := filepath.Dir(member)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var frames []Frame
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		p, n, e, ok := ParseFrame(entry.Name())
		if !ok || p != prefix || !strings.EqualFold(e, ext) {
			continue
		}
		frames = append(frames, Frame{Path: filepath.Join(dir, entry.Name()), Number: n})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].Number < frames[j].Number })
	return frames, nil
}

// SortedPaths returns paths ordered by trailing frame number when every path
// has one, otherwise lexically.
func SortedPaths(paths []string) []string {
	out := append([]string(nil), paths...)
	numbers := make(map[string]int, len(out))
	numbered := true
	for _, p := range out {
		_, n, _, ok := ParseFrame(p)
		if !ok {
			numbered = false
			break
		}
		numbers[p] = n
	}
	if numbered {
		sort.SliceStable(out, func(i, j int) bool { return numbers[out[i]] < numbers[out[j]] })
	} else {
		sort.Strings(out)
	}
	return out
}

var versionDir = regexp.MustCompile(`^v(\d+)$`)

// NextVersion returns the first unused v%04d folder name under dir, one above
// the highest existing version. A missing dir yields v0001.
func NextVersion(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}
	highest := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m := versionDir.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("v%04d", highest+1), nil
}
