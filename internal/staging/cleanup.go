package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"kitsupub/internal/logging"
)

// ArtifactPrefix marks every temp file and directory kitsupub creates in the
// staging directory (previews, concat lists, thumbnail dirs).
const ArtifactPrefix = "kitsupub-"

// CleanStaleResult contains the outcome of a stale artifact cleanup.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes kitsupub artifacts in stagingDir older than maxAge.
// Files and directories without the artifact prefix are never touched.
func CleanStale(ctx context.Context, stagingDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}

	artifacts, err := ListArtifacts(stagingDir)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, a := range artifacts {
		if ctx.Err() != nil {
			break
		}
		if !a.ModTime.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(a.Path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: a.Path, Error: err})
			if logger != nil {
				logger.Warn("failed to remove stale staging artifact",
					logging.String("path", a.Path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "staging_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, a.Path)
		if logger != nil {
			logger.Info("removed stale staging artifact",
				logging.String("path", a.Path),
				logging.Duration("age", time.Since(a.ModTime)),
				logging.Int64("size_bytes", a.Size),
				logging.String(logging.FieldEventType, "staging_cleanup"),
			)
		}
	}

	return result
}

// Artifact describes one kitsupub temp file or directory.
type Artifact struct {
	Name    string
	Path    string
	IsDir   bool
	ModTime time.Time
	Size    int64
}

// ListArtifacts returns the kitsupub artifacts in stagingDir, oldest first.
// A missing or empty directory yields no artifacts.
func ListArtifacts(stagingDir string) ([]Artifact, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var artifacts []Artifact
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), ArtifactPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(stagingDir, entry.Name())
		size := info.Size()
		if entry.IsDir() {
			size, _ = dirSize(path)
		}
		artifacts = append(artifacts, Artifact{
			Name:    entry.Name(),
			Path:    path,
			IsDir:   entry.IsDir(),
			ModTime: info.ModTime(),
			Size:    size,
		})
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].ModTime.Before(artifacts[j].ModTime) })
	return artifacts, nil
}

// dirSize calculates the total size of a directory recursively.
func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // best effort
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
