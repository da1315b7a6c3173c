package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"kitsupub/internal/fileutil"
	"kitsupub/internal/services"
)

// ErrNoSettings is returned when no settings file has been saved yet.
var ErrNoSettings = errors.New("no saved tracker settings")

// Settings are the persisted connection details. Key holds the access token,
// never the password.
type Settings struct {
	Host     string `json:"host"`
	Username string `json:"username"`
	Key      string `json:"key"`
}

// LoadSettings reads the settings file. A missing file yields ErrNoSettings;
// a malformed one is reported as a validation error.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, ErrNoSettings
		}
		return s, fmt.Errorf("read settings: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return s, ErrNoSettings
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, services.Wrap(services.ErrValidation, "session", "load settings", path, err)
	}
	return s, nil
}

// SaveSettings writes s with 4-space indentation, replacing the file
// atomically while holding an exclusive lock beside it.
func SaveSettings(path string, s Settings) error {
	if strings.TrimSpace(path) == "" {
		return services.Wrap(services.ErrConfiguration, "session", "save settings", "settings path is empty", nil)
	}
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return withLock(path, func() error {
		return fileutil.WriteFileAtomic(path, data, 0o600)
	})
}

func withLock(path string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock settings: %w", err)
	}
	defer func() {
		_ = lock.Unlock()
	}()
	return fn()
}
