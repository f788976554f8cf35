// Package config loads stageline daemon configuration from a JSON file or
// from STAGELINE_-prefixed environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the top-level stageline configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Provider ProviderConfig `json:"provider"`
	Tracker  TrackerConfig  `json:"tracker"`
	Session  SessionConfig  `json:"session"`
	Notify   NotifyConfig   `json:"notify"`
}

// ServerConfig holds the REST API server settings.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"` // Bearer auth; empty disables auth
}

// ProviderConfig holds generation provider settings.
type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "openai" (default) or "anthropic"
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

// TrackerConfig holds Linear settings. An empty APIKey disables projection.
type TrackerConfig struct {
	APIKey    string `json:"api_key,omitempty"`
	TeamID    string `json:"team_id,omitempty"`    // default team for projection
	ProjectID string `json:"project_id,omitempty"` // default project for projection
	BaseURL   string `json:"base_url,omitempty"`
}

// SessionConfig holds session persistence settings.
type SessionConfig struct {
	DataDir        string `json:"data_dir"`
	RetentionHours int    `json:"retention_hours,omitempty"` // 0 disables the sweeper
	SweepSchedule  string `json:"sweep_schedule,omitempty"`  // cron expression, default "@every 1h"
}

// NotifyConfig holds Slack notification settings. An empty token disables
// notifications.
type NotifyConfig struct {
	SlackToken   string `json:"slack_token,omitempty"`
	SlackChannel string `json:"slack_channel,omitempty"`
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables with the
// STAGELINE_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getenv("STAGELINE_HOST", "0.0.0.0"),
			Port: getenvInt("STAGELINE_PORT", 8080),
			Key:  os.Getenv("STAGELINE_API_KEY"),
		},
		Tracker: TrackerConfig{
			APIKey:    os.Getenv("STAGELINE_LINEAR_API_KEY"),
			TeamID:    os.Getenv("STAGELINE_LINEAR_TEAM_ID"),
			ProjectID: os.Getenv("STAGELINE_LINEAR_PROJECT_ID"),
		},
		Session: SessionConfig{
			DataDir:        getenv("STAGELINE_DATA_DIR", "/data"),
			RetentionHours: getenvInt("STAGELINE_SESSION_RETENTION_HOURS", 0),
			SweepSchedule:  os.Getenv("STAGELINE_SESSION_SWEEP_SCHEDULE"),
		},
		Notify: NotifyConfig{
			SlackToken:   os.Getenv("STAGELINE_SLACK_TOKEN"),
			SlackChannel: os.Getenv("STAGELINE_SLACK_CHANNEL"),
		},
	}

	if apiKey := os.Getenv("STAGELINE_ANTHROPIC_API_KEY"); apiKey != "" {
		cfg.Provider = ProviderConfig{
			Type:   "anthropic",
			APIKey: apiKey,
			Model:  os.Getenv("STAGELINE_MODEL"),
		}
	} else {
		cfg.Provider = ProviderConfig{
			Type:    "openai",
			APIKey:  os.Getenv("STAGELINE_OPENAI_API_KEY"),
			BaseURL: os.Getenv("STAGELINE_OPENAI_BASE_URL"),
			Model:   os.Getenv("STAGELINE_MODEL"),
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Session.SweepSchedule == "" {
		c.Session.SweepSchedule = "@every 1h"
	}
}

// Validate checks for required fields, collecting every problem.
func (c *Config) Validate() error {
	var errs []string

	if c.Provider.APIKey == "" {
		errs = append(errs, "provider.api_key is required")
	}
	switch c.Provider.Type {
	case "", "openai", "anthropic":
	default:
		errs = append(errs, fmt.Sprintf("provider.type %q is not supported", c.Provider.Type))
	}
	if c.Session.DataDir == "" {
		errs = append(errs, "session.data_dir is required")
	}
	if c.Session.RetentionHours < 0 {
		errs = append(errs, "session.retention_hours must not be negative")
	}
	if c.Notify.SlackToken != "" && c.Notify.SlackChannel == "" {
		errs = append(errs, "notify.slack_channel is required when notify.slack_token is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
