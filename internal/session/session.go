package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"kitsupub/internal/kitsu"
	"kitsupub/internal/logging"
	"kitsupub/internal/services"
)

// State is the connection state of a Session. A session is in exactly one
// state at a time.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Session owns the authenticated tracker client and the settings file it is
// restored from.
type Session struct {
	settingsPath string
	clientOpts   []kitsu.Option
	logger       *slog.Logger
	now          func() time.Time

	mu       sync.RWMutex
	state    State
	client   *kitsu.Client
	user     *kitsu.User
	settings Settings
}

// New creates a disconnected session persisting to settingsPath. clientOpts
// are applied to every client the session creates.
func New(settingsPath string, logger *slog.Logger, clientOpts ...kitsu.Option) *Session {
	return &Session{
		settingsPath: settingsPath,
		clientOpts:   clientOpts,
		logger:       logging.NewComponentLogger(logger, "session"),
		now:          time.Now,
	}
}

// Restore connects using the saved settings without asking for a password.
// The session stays disconnected when no settings exist, the stored token has
// expired or the tracker rejects it.
func (s *Session) Restore(ctx context.Context) error {
	settings, err := LoadSettings(s.settingsPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	if strings.TrimSpace(settings.Key) == "" || strings.TrimSpace(settings.Host) == "" {
		return ErrNoSettings
	}
	if TokenExpired(settings.Key, s.now()) {
		return services.Wrap(services.ErrConnection, "session", "restore", "stored token expired; log in again", nil)
	}

	client, err := kitsu.New(settings.Host, append(append([]kitsu.Option{}, s.clientOpts...), kitsu.WithToken(settings.Key))...)
	if err != nil {
		return err
	}
	user, err := client.CurrentUser(ctx)
	if err != nil {
		s.logger.Info("stored session rejected", logging.String("host", settings.Host), logging.Error(err))
		return services.Wrap(services.ErrConnection, "session", "restore", "stored token rejected", err)
	}
	s.setConnected(client, user)
	s.logger.Info("session restored",
		logging.String("host", client.Host()),
		logging.String("user", user.DisplayName()),
	)
	return nil
}

// Connect logs in with a password and saves the resulting token.
func (s *Session) Connect(ctx context.Context, host, username, password string) error {
	if strings.TrimSpace(host) == "" || strings.TrimSpace(username) == "" {
		return services.Wrap(services.ErrValidation, "session", "connect", "host and username are required", nil)
	}
	client, err := kitsu.New(host, s.clientOpts...)
	if err != nil {
		return err
	}
	result, err := client.Login(ctx, username, password)
	if err != nil {
		s.Disconnect()
		return err
	}

	settings := Settings{Host: host, Username: username, Key: result.AccessToken}
	if err := SaveSettings(s.settingsPath, settings); err != nil {
		logging.WarnWithContext(s.logger, "failed to save settings", "settings_save_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.settings_file is writable"),
			logging.String(logging.FieldImpact, "the next run will ask for the password again"),
		)
	}
	user := result.User
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	s.setConnected(client, &user)
	s.logger.Info("logged in", logging.String("host", client.Host()), logging.String("user", user.DisplayName()))
	return nil
}

// Disconnect drops the in-memory client. Saved settings are kept.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Disconnected
	s.client = nil
	s.user = nil
}

// Forget disconnects and clears the stored key, keeping host and username so
// the next login can be prefilled.
func (s *Session) Forget() error {
	s.Disconnect()
	settings, err := LoadSettings(s.settingsPath)
	if err != nil {
		if errors.Is(err, ErrNoSettings) {
			return nil
		}
		return err
	}
	settings.Key = ""
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return SaveSettings(s.settingsPath, settings)
}

// Client returns the connected client or kitsu.ErrNotConnected.
func (s *Session) Client() (*kitsu.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Connected || s.client == nil {
		return nil, kitsu.ErrNotConnected
	}
	return s.client, nil
}

// State reports the current connection state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// User returns the authenticated user, or nil when disconnected.
func (s *Session) User() *kitsu.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Settings returns the last loaded or saved settings.
func (s *Session) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *Session) setConnected(client *kitsu.Client, user *kitsu.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = client
	s.user = user
	s.state = Connected
}

// TokenExpired reports whether token is a JWT whose exp claim is before now.
// Tokens that are not JWTs, or carry no exp, are left to the server to judge.
func TokenExpired(token string, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(now)
}
