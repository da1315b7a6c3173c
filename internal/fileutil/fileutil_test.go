package fileutil

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "nested", "dst.txt")

	content := []byte("hello world")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
}

func TestCopyWithProgressReportsChunks(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "plate.mov")
	dst := filepath.Join(dir, "out", "plate.mov")

	content := bytes.Repeat([]byte{7}, copyChunkSize*2+10)
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	var calls []int64
	err := CopyWithProgress(src, dst, func(written, total int64) {
		if total != int64(len(content)) {
			t.Fatalf("unexpected total %d", total)
		}
		calls = append(calls, written)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) < 3 || calls[len(calls)-1] != int64(len(content)) {
		t.Fatalf("unexpected progress calls %v", calls)
	}
	info, err := os.Stat(dst)
	if err != nil || info.Size() != int64(len(content)) {
		t.Fatalf("destination not fully written: %v", err)
	}
}

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")

	content := []byte("verified copy content")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFileVerified(src, dst); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
}

func TestCopyFileVerified_MissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := CopyFileVerified(filepath.Join(dir, "nonexistent"), filepath.Join(dir, "dst.bin")); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestCopyFile_MissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := CopyFile(filepath.Join(dir, "nope"), filepath.Join(dir, "dst")); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg", "settings.json")

	if err := WriteFileAtomic(path, []byte("one"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "two" {
		t.Fatalf("got %q, %v", got, err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected mode %o", info.Mode().Perm())
	}
}

func TestScanSequence(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"plate.1002.exr", "plate.1001.exr", "plate.1003.exr", "other.1001.exr", "plate.1001.jpg"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	frames, err := ScanSequence(filepath.Join(dir, "plate.1002.exr"))
	if err != nil {
		t.Fatal(err)
	}
	var numbers []int
	for _, f := range frames {
		numbers = append(numbers, f.Number)
	}
	if !reflect.DeepEqual(numbers, []int{1001, 1002, 1003}) {
		t.Fatalf("unexpected frames %v", numbers)
	}
}

func TestParseFrame(t *testing.T) {
	prefix, n, ext, ok := ParseFrame("/shots/sh010_plate.0042.exr")
	if !ok || prefix != "sh010_plate." || n != 42 || ext != ".exr" {
		t.Fatalf("unexpected parse %q %d %q %v", prefix, n, ext, ok)
	}
	if _, _, _, ok := ParseFrame("plate.exr"); ok {
		t.Fatal("name without frame number should not parse")
	}
}

func TestSortedPaths(t *testing.T) {
	got := SortedPaths([]string{"a.10.png", "a.9.png", "a.100.png"})
	if !reflect.DeepEqual(got, []string{"a.9.png", "a.10.png", "a.100.png"}) {
		t.Fatalf("expected numeric order, got %v", got)
	}
	got = SortedPaths([]string{"b.png", "a.png"})
	if !reflect.DeepEqual(got, []string{"a.png", "b.png"}) {
		t.Fatalf("expected lexical order, got %v", got)
	}
}

func TestNextVersion(t *testing.T) {
	dir := t.TempDir()
	if v, err := NextVersion(filepath.Join(dir, "missing")); err != nil || v != "v0001" {
		t.Fatalf("got %q, %v", v, err)
	}
	for _, name := range []string{"v0001", "v0007", "notes"} {
		if err := os.Mkdir(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if v, err := NextVersion(dir); err != nil || v != "v0008" {
		t.Fatalf("got %q, %v", v, err)
	}
}
