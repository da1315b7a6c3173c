package testsupport

import (
	"path/filepath"
	"testing"

	"kitsupub/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.SettingsFile = filepath.Join(base, "config", "settings.json")
	cfg.Paths.HistoryDB = filepath.Join(base, "data", "history.db")
	cfg.Paths.APIBind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure test directories: %v", err)
	}
	return &cfg
}

// WithTrackerHost points the config at a fake tracker.
func WithTrackerHost(host string) ConfigOption {
	return func(c *config.Config) {
		c.Tracker.Host = host
	}
}

// WithFFmpegBinary overrides the ffmpeg executable.
func WithFFmpegBinary(bin string) ConfigOption {
	return func(c *config.Config) {
		c.Transcode.FFmpegBinary = bin
	}
}
