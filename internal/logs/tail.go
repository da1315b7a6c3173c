package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// LastLines returns up to n trailing lines of path and the offset just past
// them. A missing file yields no lines and offset 0; n <= 0 returns every line.
func LastLines(path string, n int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var window []string
	offset, err := scanLines(file, func(line string) {
		window = append(window, line)
		if n > 0 && len(window) > n {
			window = window[1:]
		}
	})
	if err != nil {
		return nil, 0, err
	}
	return window, offset, nil
}

// ReadFrom returns the complete lines written to path after offset. If the
// file shrank below offset (it was replaced) reading restarts at 0.
func ReadFrom(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	var lines []string
	read, err := scanLines(file, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		return nil, offset, err
	}
	return lines, offset + read, nil
}

// Follow polls path every interval, passing new lines to fn, until ctx is
// done.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, fn func(string)) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		lines, next, err := ReadFrom(path, offset)
		if err != nil {
			return err
		}
		for _, line := range lines {
			fn(line)
		}
		offset = next
	}
}

// scanLines feeds complete newline-terminated lines to fn and returns the
// number of bytes consumed. A trailing partial line is left for the next read.
func scanLines(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return consumed, nil
			}
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		fn(trimNewline(line))
	}
}

func trimNewline(line string) string {
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
