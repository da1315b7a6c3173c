package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"kitsupub/internal/config"
	"kitsupub/internal/deps"
	"kitsupub/internal/kitsu"
	"kitsupub/internal/logging"
	"kitsupub/internal/session"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	jsonFlag     *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
	stream     *logging.StreamHub
}

func newCommandContext(configFlag, logLevelFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		jsonFlag:     jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.TrimSpace(*c.logLevelFlag)
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// JSONMode reports whether --json was given.
func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// useStream makes the logger also feed hub. It must be called before the
// first ensureLogger call.
func (c *commandContext) useStream(hub *logging.StreamHub) {
	c.stream = hub
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, err := logging.NewFromConfig(cfg, c.stream)
		if err != nil {
			c.loggerErr = fmt.Errorf("init logger: %w", err)
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) clientOptions(logger *slog.Logger) []kitsu.Option {
	opts := []kitsu.Option{kitsu.WithLogger(logger)}
	if cfg := c.config; cfg != nil {
		if timeout := cfg.TrackerTimeout(); timeout > 0 {
			opts = append(opts, kitsu.WithTimeout(timeout))
		}
	}
	return opts
}

func (c *commandContext) newSession(logger *slog.Logger) (*session.Session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return session.New(cfg.Paths.SettingsFile, logger, c.clientOptions(logger)...), nil
}

// connectedClient restores the saved session and returns its client.
func (c *commandContext) connectedClient(ctx context.Context) (*kitsu.Client, *slog.Logger, error) {
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, nil, err
	}
	sess, err := c.newSession(logger)
	if err != nil {
		return nil, nil, err
	}
	if err := sess.Restore(ctx); err != nil {
		return nil, nil, fmt.Errorf("restore session: %w (run 'kitsupub login')", err)
	}
	client, err := sess.Client()
	if err != nil {
		return nil, nil, fmt.Errorf("%w (run 'kitsupub login')", err)
	}
	return client, logger, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

// ffmpegCommand prefers a bundled ffmpeg beside the executable over PATH.
func ffmpegCommand(cfg *config.Config) string {
	return deps.ResolveFFmpeg(cfg.FFmpegBinary()).Command
}
