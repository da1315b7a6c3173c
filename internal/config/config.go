package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, file and bind address configuration.
type Paths struct {
	StagingDir     string `toml:"staging_dir"`
	LogDir         string `toml:"log_dir"`
	SettingsFile   string `toml:"settings_file"`
	HistoryDB      string `toml:"history_db"`
	APIBind        string `toml:"api_bind"`
	// APIToken, when set, is required as a bearer token by the sidecar API.
	APIToken       string `toml:"api_token"`
	// ProductionRoot is the pipeline project folder plates are exported into.
	ProductionRoot string `toml:"production_root"`
}

// Tracker contains configuration for the production-tracking server.
type Tracker struct {
	Host           string `toml:"host"`
	RequestTimeout int    `toml:"request_timeout"`
	DefaultStatus  string `toml:"default_status"`
	SetMainPreview bool   `toml:"set_main_preview"`
}

// Sync contains configuration for task-tree synchronization passes.
type Sync struct {
	MineOnly                 bool `toml:"mine_only"`
	EstimateWarningThreshold int  `toml:"estimate_warning_threshold"`
	Thumbnails               bool `toml:"thumbnails"`
	ThumbnailSize            int  `toml:"thumbnail_size"`
	SortGroups               bool `toml:"sort_groups"`
}

// Transcode contains configuration for preview transcoding.
type Transcode struct {
	FFmpegBinary string  `toml:"ffmpeg_binary"`
	DefaultFPS   float64 `toml:"default_fps"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Publish        bool   `toml:"publish"`
	Errors         bool   `toml:"errors"`
}

// Staging contains configuration for temporary artifact housekeeping.
type Staging struct {
	MaxAgeHours int `toml:"max_age_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for kitsupub.
//
// Configuration sections by subsystem:
//   - Paths: staging/log directories, settings file, history database, sidecar bind, production root
//   - Tracker: tracking server host and publish defaults
//   - Sync: task-tree synchronization behaviour
//   - Transcode: ffmpeg binary and default frame rate
//   - Notifications: ntfy push notification settings
//   - Staging: temp artifact retention
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Tracker       Tracker       `toml:"tracker"`
	Sync          Sync          `toml:"sync"`
	Transcode     Transcode     `toml:"transcode"`
	Notifications Notifications `toml:"notifications"`
	Staging       Staging       `toml:"staging"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("kitsupub.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories kitsupub writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StagingDir, c.Paths.LogDir}
	if c.Paths.SettingsFile != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.SettingsFile))
	}
	if c.Paths.HistoryDB != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.HistoryDB))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used for preview transcodes.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Transcode.FFmpegBinary); bin != "" {
		return bin
	}
	return defaultFFmpegBinary
}

// TrackerTimeout returns the per-request timeout for tracker calls. Zero means
// the HTTP client default (no timeout).
func (c *Config) TrackerTimeout() time.Duration {
	if c.Tracker.RequestTimeout <= 0 {
		return 0
	}
	return time.Duration(c.Tracker.RequestTimeout) * time.Second
}

// StagingMaxAge returns how long temp artifacts may linger before cleanup.
func (c *Config) StagingMaxAge() time.Duration {
	return time.Duration(c.Staging.MaxAgeHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
