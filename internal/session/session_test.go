package session_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"kitsupub/internal/kitsu"
	"kitsupub/internal/logging"
	"kitsupub/internal/services"
	"kitsupub/internal/session"
	"kitsupub/internal/testsupport"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestSettingsRoundTripUsesFourSpaceIndent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	want := session.Settings{Host: "https://kitsu.example", Username: "artist", Key: "abc"}
	if err := session.SaveSettings(path, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n    \"host\": ") {
		t.Fatalf("expected 4-space indent, got %s", data)
	}
	got, err := session.LoadSettings(path)
	if err != nil || got != want {
		t.Fatalf("load: %+v %v", got, err)
	}
}

func TestLoadSettingsMissingAndMalformed(t *testing.T) {
	dir := t.TempDir()
	if _, err := session.LoadSettings(filepath.Join(dir, "nope.json")); !errors.Is(err, session.ErrNoSettings) {
		t.Fatalf("expected ErrNoSettings, got %v", err)
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := session.LoadSettings(bad); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConnectSavesTokenAndRestoreReconnects(t *testing.T) {
	f := testsupport.NewFakeTracker(t)
	path := filepath.Join(t.TempDir(), "settings.json")

	s := session.New(path, logging.NewNop())
	if s.State() != session.Disconnected {
		t.Fatal("new session should start disconnected")
	}
	if _, err := s.Client(); !errors.Is(err, kitsu.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := s.Connect(context.Background(), f.URL(), f.Email, f.Password); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if s.State() != session.Connected || s.User() == nil || s.User().ID != "user-1" {
		t.Fatalf("unexpected state after connect: %s %+v", s.State(), s.User())
	}
	saved, err := session.LoadSettings(path)
	if err != nil || saved.Key != f.Token || saved.Username != f.Email {
		t.Fatalf("unexpected saved settings %+v %v", saved, err)
	}

	restored := session.New(path, logging.NewNop())
	if err := restored.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	client, err := restored.Client()
	if err != nil || client.Token() != f.Token {
		t.Fatalf("restored client unusable: %v", err)
	}

	restored.Disconnect()
	if restored.State() != session.Disconnected {
		t.Fatal("disconnect should leave the session disconnected")
	}
}

func TestConnectWrongPasswordStaysDisconnected(t *testing.T) {
	f := testsupport.NewFakeTracker(t)
	path := filepath.Join(t.TempDir(), "settings.json")

	s := session.New(path, logging.NewNop())
	err := s.Connect(context.Background(), f.URL(), f.Email, "wrong")
	if !errors.Is(err, services.ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if s.State() != session.Disconnected {
		t.Fatal("failed login must not connect")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("failed login must not write settings")
	}
}

func TestRestoreSkipsExpiredToken(t *testing.T) {
	f := testsupport.NewFakeTracker(t)
	path := filepath.Join(t.TempDir(), "settings.json")
	expired := signedToken(t, time.Now().Add(-time.Hour))
	if err := session.SaveSettings(path, session.Settings{Host: f.URL(), Username: "artist", Key: expired}); err != nil {
		t.Fatal(err)
	}

	s := session.New(path, logging.NewNop())
	if err := s.Restore(context.Background()); !errors.Is(err, services.ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if s.State() != session.Disconnected {
		t.Fatal("expired token must not connect")
	}
	if len(f.Requests()) != 0 {
		t.Fatalf("expired token should not reach the tracker: %v", f.Requests())
	}
	if s.Settings().Username != "artist" {
		t.Fatal("loaded settings should still be available for prefill")
	}
}

func TestRestoreRejectedToken(t *testing.T) {
	f := testsupport.NewFakeTracker(t)
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := session.SaveSettings(path, session.Settings{Host: f.URL(), Username: "artist", Key: "stale"}); err != nil {
		t.Fatal(err)
	}
	s := session.New(path, logging.NewNop())
	if err := s.Restore(context.Background()); !errors.Is(err, services.ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if s.State() != session.Disconnected {
		t.Fatal("rejected token must not connect")
	}
}

func TestForgetClearsKey(t *testing.T) {
	f := testsupport.NewFakeTracker(t)
	path := filepath.Join(t.TempDir(), "settings.json")
	s := session.New(path, logging.NewNop())
	if err := s.Connect(context.Background(), f.URL(), f.Email, f.Password); err != nil {
		t.Fatal(err)
	}
	if err := s.Forget(); err != nil {
		t.Fatalf("forget: %v", err)
	}
	saved, err := session.LoadSettings(path)
	if err != nil || saved.Key != "" || saved.Host != f.URL() {
		t.Fatalf("unexpected settings after forget %+v %v", saved, err)
	}
	if s.State() != session.Disconnected {
		t.Fatal("forget should disconnect")
	}
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()
	if !session.TokenExpired(signedToken(t, now.Add(-time.Minute)), now) {
		t.Fatal("past exp should be expired")
	}
	if session.TokenExpired(signedToken(t, now.Add(time.Hour)), now) {
		t.Fatal("future exp should not be expired")
	}
	if session.TokenExpired("opaque-token", now) {
		t.Fatal("non-JWT tokens are left to the server")
	}
}
