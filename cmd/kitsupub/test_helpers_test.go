package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"kitsupub/internal/config"
	"kitsupub/internal/kitsu"
	"kitsupub/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	tracker    *testsupport.FakeTracker
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("KITSU_HOST", "")

	tracker := testsupport.NewFakeTracker(t)
	cfg := testsupport.NewConfig(t, testsupport.WithTrackerHost(tracker.URL()))
	cfg.Paths.ProductionRoot = filepath.Join(base, "production")

	configPath := filepath.Join(homeDir, ".config", "kitsupub", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, tracker: tracker, configPath: configPath, baseDir: base}
}

// run executes the CLI against the env's config file.
func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, "", append([]string{"--config", e.configPath}, args...)...)
}

// login stores a session for the fake tracker's user.
func (e *cliTestEnv) login(t *testing.T) {
	t.Helper()
	out, _, err := runCLI(t, e.tracker.Password+"\n", "--config", e.configPath, "login", "--user", e.tracker.Email)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	requireContains(t, out, "Logged in to")
}

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func decodeJSON[T any](t *testing.T, raw string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return v
}

func shotTask(id, project, seq, shot, taskType string) kitsu.TaskDetail {
	return kitsu.TaskDetail{
		ID:         id,
		Project:    &kitsu.Named{ID: "proj-" + project, Name: project},
		TaskType:   &kitsu.TaskType{ID: "tt-" + taskType, Name: taskType, ForEntity: "Shot"},
		Entity:     &kitsu.Entity{ID: "ent-" + shot, Name: shot},
		EntityType: &kitsu.Named{ID: "et-shot", Name: "Shot"},
		Sequence:   &kitsu.Named{ID: "seq-" + seq, Name: seq},
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
