package preflight

import (
	"context"
	"errors"
	"strings"
	"time"

	"kitsupub/internal/config"
	"kitsupub/internal/session"
)

// CheckTrackerFromConfig evaluates tracker status from config and connectivity.
func CheckTrackerFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Tracker"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Tracker.Host) == "" {
		return Result{Name: name, Detail: "Missing host (set tracker.host or KITSU_HOST)"}
	}
	return CheckTracker(ctx, cfg.Tracker.Host)
}

// CheckSavedSession reports whether a stored access token is available
// without contacting the server.
func CheckSavedSession(cfg *config.Config, now time.Time) Result {
	const name = "Session"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	settings, err := session.LoadSettings(cfg.Paths.SettingsFile)
	switch {
	case errors.Is(err, session.ErrNoSettings):
		return Result{Name: name, Detail: "Not logged in (run 'kitsupub login')"}
	case err != nil:
		return Result{Name: name, Detail: err.Error()}
	case strings.TrimSpace(settings.Key) == "":
		return Result{Name: name, Detail: "Logged out (run 'kitsupub login')"}
	case session.TokenExpired(settings.Key, now):
		return Result{Name: name, Detail: "Token expired (run 'kitsupub login')"}
	}
	detail := "Token stored"
	if settings.Username != "" {
		detail += " for " + settings.Username
	}
	return Result{Name: name, Passed: true, Detail: detail}
}
