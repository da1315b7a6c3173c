package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"kitsupub/internal/logging"
	"kitsupub/internal/services"
	"kitsupub/internal/testsupport"
)

type captured struct {
	name string
	args []string
	list string
}

func setHelperCommand(t *testing.T, mode string, c *captured) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if c != nil {
			c.name = name
			c.args = append([]string(nil), args...)
			for i, arg := range args {
				if arg == "-i" && i+1 < len(args) && strings.HasSuffix(args[i+1], ".txt") {
					data, _ := os.ReadFile(args[i+1])
					c.list = string(data)
				}
			}
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("FFMPEG_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "success":
		fmt.Fprint(os.Stderr, "ffmpeg version 6.1\nInput #0, concat\n")
		fmt.Fprint(os.Stderr, "frame=    1 fps=0.0 q=0.0 size=0kB\rframe=    2 fps=0.0\rframe=    3 fps=30 q=-1.0 Lsize=12kB\n")
		os.Exit(0)
	case "flood":
		// An unterminated line longer than the scanner buffer, then more
		// output than a pipe holds.
		os.Stderr.Write(bytes.Repeat([]byte("x"), 128*1024))
		for i := 0; i < 4096; i++ {
			fmt.Fprintf(os.Stderr, "frame=%5d fps=24 q=-1.0 size=0kB\n", i)
		}
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "Unknown encoder 'libx264'")
		os.Exit(1)
	default:
		os.Exit(0)
	}
}

func TestTranscodeSingleFile(t *testing.T) {
	var c captured
	setHelperCommand(t, "success", &c)
	dir := t.TempDir()
	tr := New("/opt/ffmpeg", dir, logging.NewNop())

	var frames []int
	out := filepath.Join(dir, "out", "preview.mp4")
	err := tr.Transcode(context.Background(), Request{Inputs: []string{"/media/shot.mov"}, Output: out, FPS: 24}, func(p Progress) {
		frames = append(frames, p.Frame)
		if p.Total != 0 || p.Percent != -1 {
			t.Errorf("single file progress should have unknown total: %+v", p)
		}
	})
	if err != nil {
		t.Fatalf("transcode: %v", err)
	}
	if c.name != "/opt/ffmpeg" {
		t.Fatalf("expected configured binary, got %q", c.name)
	}
	if !reflect.DeepEqual(c.args, SingleArgs("/media/shot.mov", out)) {
		t.Fatalf("unexpected args %v", c.args)
	}
	if !reflect.DeepEqual(frames, []int{1, 2, 3}) {
		t.Fatalf("expected frames 1..3, got %v", frames)
	}
}

func TestTranscodeSequenceUsesConcatList(t *testing.T) {
	var c captured
	setHelperCommand(t, "success", &c)
	staging := t.TempDir()
	src := t.TempDir()
	paths := testsupport.WriteSequence(t, src, "plate", "png", 1001, 3)
	shuffled := []string{paths[2], paths[0], paths[1]}

	var last Progress
	tr := New("ffmpeg", staging, logging.NewNop())
	out := filepath.Join(staging, "preview.mp4")
	if err := tr.Transcode(context.Background(), Request{Inputs: shuffled, Output: out, FPS: 25}, func(p Progress) { last = p }); err != nil {
		t.Fatalf("transcode: %v", err)
	}

	wantList := ""
	for _, p := range paths {
		wantList += "file '" + p + "'\n"
	}
	if c.list != wantList {
		t.Fatalf("unexpected concat list:\n%s\nwant:\n%s", c.list, wantList)
	}
	if c.args[0] != "-y" || c.args[1] != "-f" || c.args[2] != "concat" || c.args[6] != "25" {
		t.Fatalf("unexpected sequence args %v", c.args)
	}
	if last.Total != 3 || last.Frame != 3 || last.Percent != 100 {
		t.Fatalf("unexpected final progress %+v", last)
	}
	entries, _ := os.ReadDir(staging)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "kitsupub-concat-") {
			t.Fatalf("concat list not removed: %s", e.Name())
		}
	}
}

func TestTranscodeDrainsUnparsableOutput(t *testing.T) {
	setHelperCommand(t, "flood", nil)
	dir := t.TempDir()
	tr := New("ffmpeg", dir, logging.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	err := tr.Transcode(ctx, Request{Inputs: []string{"/media/shot.mov"}, Output: filepath.Join(dir, "out.mp4"), FPS: 24}, nil)
	if err != nil {
		t.Fatalf("expected transcode to finish once ffmpeg exits, got %v", err)
	}
}

func TestTranscodeFailureRemovesListAndReportsStderr(t *testing.T) {
	setHelperCommand(t, "failure", nil)
	staging := t.TempDir()
	paths := testsupport.WriteSequence(t, t.TempDir(), "plate", "png", 1, 2)

	tr := New("ffmpeg", staging, logging.NewNop())
	err := tr.Transcode(context.Background(), Request{Inputs: paths, Output: filepath.Join(staging, "p.mp4"), FPS: 24}, nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Unknown encoder") {
		t.Fatalf("expected stderr tail in error, got %v", err)
	}
	entries, _ := os.ReadDir(staging)
	if len(entries) != 0 {
		t.Fatalf("staging should be clean after failure, found %d entries", len(entries))
	}
}

func TestTranscodeValidatesRequest(t *testing.T) {
	tr := New("", t.TempDir(), logging.NewNop())
	if tr.Binary() != "ffmpeg" {
		t.Fatalf("expected default binary, got %q", tr.Binary())
	}
	cases := []Request{
		{Output: "out.mp4", FPS: 24},
		{Inputs: []string{"a.mov"}, FPS: 24},
		{Inputs: []string{"a.mov"}, Output: "out.mp4", FPS: 0},
		{Inputs: []string{"a.mov"}, Output: "out.mp4", FPS: -1},
	}
	for _, req := range cases {
		if err := tr.Transcode(context.Background(), req, nil); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
	}
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		line string
		want int
		ok   bool
	}{
		{"frame=  120 fps= 30 q=28.0", 120, true},
		{"frame=7", 7, true},
		{"frame= fps=0", 0, false},
		{"Stream mapping:", 0, false},
		{"frame=abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseFrame(tt.line)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseFrame(%q) = %d, %v; want %d, %v", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSplitLinesHandlesCarriageReturns(t *testing.T) {
	data := []byte("a\rb\nc")
	var tokens []string
	for len(data) > 0 {
		adv, tok, _ := splitLines(data, true)
		tokens = append(tokens, string(tok))
		data = data[adv:]
	}
	if !reflect.DeepEqual(tokens, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected tokens %v", tokens)
	}
}

func TestTempOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "staging")
	path, err := TempOutput(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != dir || !strings.HasSuffix(path, ".mp4") || !strings.HasPrefix(filepath.Base(path), "kitsupub-preview-") {
		t.Fatalf("unexpected temp output %q", path)
	}
}
