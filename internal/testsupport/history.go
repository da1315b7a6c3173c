package testsupport

import (
	"testing"

	"kitsupub/internal/config"
	"kitsupub/internal/history"
)

// MustOpenHistory opens the history database for cfg and closes it on cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
