package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"server": {"host": "127.0.0.1", "port": 9090, "api_key": "secret"},
		"provider": {"type": "openai", "api_key": "sk-test", "model": "gpt-4o"},
		"tracker": {"api_key": "lin_api_x", "team_id": "team-1"},
		"session": {"data_dir": "/tmp/stageline", "retention_hours": 72}
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Provider.Model != "gpt-4o" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Tracker.TeamID != "team-1" {
		t.Errorf("tracker = %+v", cfg.Tracker)
	}
	if cfg.Session.SweepSchedule != "@every 1h" {
		t.Errorf("sweep schedule default = %q", cfg.Session.SweepSchedule)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.json"); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STAGELINE_OPENAI_API_KEY", "sk-env")
	t.Setenv("STAGELINE_DATA_DIR", t.TempDir())
	t.Setenv("STAGELINE_PORT", "7070")
	t.Setenv("STAGELINE_LINEAR_API_KEY", "lin_env")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Provider.Type != "openai" || cfg.Provider.APIKey != "sk-env" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Tracker.APIKey != "lin_env" {
		t.Errorf("tracker = %+v", cfg.Tracker)
	}
}

func TestLoadFromEnv_AnthropicWins(t *testing.T) {
	t.Setenv("STAGELINE_ANTHROPIC_API_KEY", "ak-env")
	t.Setenv("STAGELINE_OPENAI_API_KEY", "sk-env")
	t.Setenv("STAGELINE_DATA_DIR", t.TempDir())

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Provider.Type != "anthropic" || cfg.Provider.APIKey != "ak-env" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Provider: ProviderConfig{Type: "mystery"},
		Session:  SessionConfig{RetentionHours: -1},
		Notify:   NotifyConfig{SlackToken: "xoxb-x"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{
		"provider.api_key is required",
		"provider.type",
		"session.data_dir is required",
		"retention_hours",
		"slack_channel",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}
