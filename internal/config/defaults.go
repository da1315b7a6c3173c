package config

const (
	defaultConfigPath               = "~/.config/kitsupub/config.toml"
	defaultStagingDir               = "~/.local/share/kitsupub/staging"
	defaultLogDir                   = "~/.local/share/kitsupub/logs"
	defaultSettingsFile             = "~/.config/kitsupub/settings.json"
	defaultHistoryDB                = "~/.local/share/kitsupub/history.db"
	defaultAPIBind                  = "127.0.0.1:7490"
	defaultTaskStatus               = "wfa"
	defaultEstimateWarningThreshold = 40
	defaultThumbnailSize            = 96
	defaultFFmpegBinary             = "ffmpeg"
	defaultFPS                      = 24
	defaultNotifyRequestTimeout     = 10
	defaultStagingMaxAgeHours       = 72
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultLogRetentionDays         = 14
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:   defaultStagingDir,
			LogDir:       defaultLogDir,
			SettingsFile: defaultSettingsFile,
			HistoryDB:    defaultHistoryDB,
			APIBind:      defaultAPIBind,
		},
		Tracker: Tracker{
			DefaultStatus: defaultTaskStatus,
		},
		Sync: Sync{
			EstimateWarningThreshold: defaultEstimateWarningThreshold,
			Thumbnails:               true,
			ThumbnailSize:            defaultThumbnailSize,
		},
		Transcode: Transcode{
			FFmpegBinary: defaultFFmpegBinary,
			DefaultFPS:   defaultFPS,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Publish:        true,
			Errors:         true,
		},
		Staging: Staging{
			MaxAgeHours: defaultStagingMaxAgeHours,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
