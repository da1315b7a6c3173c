package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PruneOldLogs removes files in dir matching pattern whose modification time
// is older than retentionDays. The active log file (keep) is never removed.
// A retentionDays value of 0 disables pruning. Returns the removed paths.
func PruneOldLogs(logger *slog.Logger, dir, pattern, keep string, retentionDays int, now time.Time) []string {
	dir = strings.TrimSpace(dir)
	if retentionDays <= 0 || dir == "" {
		return nil
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	if keep != "" {
		if abs, err := filepath.Abs(keep); err == nil {
			keep = abs
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var removed []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if pattern != "" {
			if matched, err := filepath.Match(pattern, name); err != nil || !matched {
				continue
			}
		}
		fullPath := filepath.Join(dir, name)
		if abs, err := filepath.Abs(fullPath); err == nil {
			fullPath = abs
		}
		if fullPath == keep {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(fullPath); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", fullPath),
				Error(err),
				String(FieldErrorHint, "check file permissions and log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed = append(removed, fullPath)
		if logger != nil {
			logger.Info("log pruned", String("path", fullPath), String(FieldEventType, "log_pruned"))
		}
	}
	return removed
}
