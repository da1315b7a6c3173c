package transcode

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"kitsupub/internal/fileutil"
	"kitsupub/internal/logging"
	"kitsupub/internal/services"
)

var commandContext = exec.CommandContext

// stderrTail is how many trailing ffmpeg stderr lines are kept for errors.
const stderrTail = 8

// Progress reports encoder advancement. Total and Percent are unknown (0 and
// -1) for single-file inputs.
type Progress struct {
	Frame   int
	Total   int
	Percent float64
}

// Request describes one preview encode.
type Request struct {
	// Inputs is one movie file, or two or more image frames.
	Inputs []string
	Output string
	FPS    float64
}

// Transcoder runs ffmpeg to produce review previews.
type Transcoder struct {
	binary     string
	stagingDir string
	logger     *slog.Logger
}

// New constructs a transcoder. Concat list files are written to stagingDir.
func New(binary, stagingDir string, logger *slog.Logger) *Transcoder {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &Transcoder{
		binary:     binary,
		stagingDir: stagingDir,
		logger:     logging.NewComponentLogger(logger, "transcode"),
	}
}

// Binary returns the ffmpeg executable in use.
func (t *Transcoder) Binary() string {
	return t.binary
}

// Transcode encodes req.Inputs into req.Output. Sequences are ordered by
// frame number and fed through a temporary concat list that is removed on
// every exit path.
func (t *Transcoder) Transcode(ctx context.Context, req Request, progress func(Progress)) error {
	if len(req.Inputs) == 0 {
		return services.Wrap(services.ErrValidation, "transcode", "inputs", "no input files", nil)
	}
	if strings.TrimSpace(req.Output) == "" {
		return services.Wrap(services.ErrValidation, "transcode", "output", "output path required", nil)
	}
	if req.FPS <= 0 {
		return services.Wrap(services.ErrValidation, "transcode", "fps", fmt.Sprintf("fps must be positive, got %v", req.FPS), nil)
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	var args []string
	total := 0
	if len(req.Inputs) == 1 {
		args = SingleArgs(req.Inputs[0], req.Output)
	} else {
		inputs := fileutil.SortedPaths(req.Inputs)
		list, err := t.writeConcatList(inputs)
		if err != nil {
			return err
		}
		defer os.Remove(list)
		args = SequenceArgs(list, req.Output, req.FPS)
		total = len(inputs)
	}

	t.logger.Info("transcode started",
		logging.String("output", req.Output),
		logging.Int("inputs", len(req.Inputs)),
		logging.Float64("fps", req.FPS),
		logging.String(logging.FieldEventType, "transcode_started"),
	)
	return t.run(ctx, args, total, progress)
}

func (t *Transcoder) run(ctx context.Context, args []string, total int, progress func(Progress)) error {
	cmd := commandContext(ctx, t.binary, args...) //nolint:gosec
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrExternalTool, "transcode", "start ffmpeg", t.binary, err)
	}

	sampler := logging.NewProgressSampler(10)
	var tail []string
	scanner := bufio.NewScanner(stderr)
	scanner.Split(splitLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		frame, ok := ParseFrame(line)
		if !ok {
			tail = append(tail, line)
			if len(tail) > stderrTail {
				tail = tail[1:]
			}
			continue
		}
		p := Progress{Frame: frame, Total: total, Percent: -1}
		if total > 0 {
			p.Percent = min(100, float64(frame)*100/float64(total))
		}
		if sampler.ShouldLog(p.Percent, "encoding") {
			t.logger.Info("transcode progress",
				logging.Int("frame", p.Frame),
				logging.Int("total", p.Total),
				logging.Float64("percent", p.Percent),
			)
		}
		if progress != nil {
			progress(p)
		}
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// ffmpeg blocks on a full pipe if stderr stops being read.
		_, _ = io.Copy(io.Discard, stderr)
	}

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg", strings.Join(tail, " | "), err)
	}
	if scanErr != nil && !errors.Is(scanErr, os.ErrClosed) {
		t.logger.Debug("ffmpeg output not fully parsed", logging.Error(scanErr))
	}
	t.logger.Info("transcode finished", logging.String(logging.FieldEventType, "transcode_finished"))
	return nil
}

func (t *Transcoder) writeConcatList(inputs []string) (string, error) {
	dir := t.stagingDir
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create staging dir: %w", err)
		}
	}
	f, err := os.CreateTemp(dir, "kitsupub-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create concat list: %w", err)
	}
	var buf bytes.Buffer
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			abs = in
		}
		fmt.Fprintf(&buf, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write concat list: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// SingleArgs builds the ffmpeg arguments for a single movie input.
func SingleArgs(input, output string) []string {
	return []string{
		"-y", "-i", input,
		"-c:v", "libx264", "-crf", "23", "-preset", "medium",
		"-c:a", "aac", "-b:a", "128k",
		output,
	}
}

// SequenceArgs builds the ffmpeg arguments for an image sequence fed through
// a concat list.
func SequenceArgs(list, output string, fps float64) []string {
	rate := strconv.FormatFloat(fps, 'f', -1, 64)
	return []string{
		"-y", "-f", "concat", "-safe", "0", "-r", rate,
		"-i", list,
		"-c:v", "libx264", "-pix_fmt", "yuv420p", "-r", rate,
		"-loglevel", "info",
		output,
	}
}

// ParseFrame extracts the frame counter from an ffmpeg status line such as
// "frame=  120 fps= 30 ...".
func ParseFrame(line string) (int, bool) {
	_, rest, found := strings.Cut(line, "frame=")
	if !found {
		return 0, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// splitLines is bufio.ScanLines that also breaks on carriage returns, which
// ffmpeg uses to redraw its status line.
func splitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// TempOutput reserves a unique preview path under dir.
func TempOutput(dir string) (string, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	f, err := os.CreateTemp(dir, "kitsupub-preview-*.mp4")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", err
	}
	return name, nil
}
