package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTracker()
	c.normalizeTranscode()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SettingsFile) == "" {
		c.Paths.SettingsFile = defaultSettingsFile
	}
	if c.Paths.SettingsFile, err = expandPath(c.Paths.SettingsFile); err != nil {
		return fmt.Errorf("paths.settings_file: %w", err)
	}
	if c.Paths.HistoryDB, err = expandPath(c.Paths.HistoryDB); err != nil {
		return fmt.Errorf("paths.history_db: %w", err)
	}
	if c.Paths.ProductionRoot, err = expandPath(strings.TrimSpace(c.Paths.ProductionRoot)); err != nil {
		return fmt.Errorf("paths.production_root: %w", err)
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeTracker() {
	c.Tracker.Host = strings.TrimRight(strings.TrimSpace(c.Tracker.Host), "/")
	if c.Tracker.Host == "" {
		if value, ok := os.LookupEnv("KITSU_HOST"); ok {
			c.Tracker.Host = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}
	c.Tracker.DefaultStatus = strings.TrimSpace(c.Tracker.DefaultStatus)
	if c.Tracker.DefaultStatus == "" {
		c.Tracker.DefaultStatus = defaultTaskStatus
	}
}

func (c *Config) normalizeTranscode() {
	c.Transcode.FFmpegBinary = strings.TrimSpace(c.Transcode.FFmpegBinary)
	if c.Transcode.FFmpegBinary == "" {
		c.Transcode.FFmpegBinary = defaultFFmpegBinary
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("KITSUPUB_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
