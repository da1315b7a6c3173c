package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTracker(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Staging.MaxAgeHours <= 0 {
		return errors.New("staging.max_age_hours must be positive")
	}
	return nil
}

func (c *Config) validateTracker() error {
	host := c.Tracker.Host
	if host != "" && !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		return fmt.Errorf("tracker.host must start with http:// or https:// (got %q)", host)
	}
	if c.Tracker.RequestTimeout < 0 {
		return errors.New("tracker.request_timeout must be >= 0")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.EstimateWarningThreshold <= 0 {
		return errors.New("sync.estimate_warning_threshold must be positive")
	}
	if c.Sync.ThumbnailSize <= 0 {
		return errors.New("sync.thumbnail_size must be positive")
	}
	return nil
}

func (c *Config) validateTranscode() error {
	if c.Transcode.DefaultFPS <= 0 {
		return errors.New("transcode.default_fps must be a positive number")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}
