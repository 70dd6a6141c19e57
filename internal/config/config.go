// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the scanner service.
type Config struct {
	// Server
	Port int

	// Postgres
	DatabaseURL string

	// Redis
	RedisURL   string
	ScansQueue string

	// Auth
	JWTSecret string

	// Providers
	SlackAPIURL        string
	GoogleClientID     string
	GoogleClientSecret string

	// Reasoning engine
	AnthropicAPIKey    string
	AnthropicModel     string
	AnthropicBaseURL   string
	AnthropicMaxTokens int

	Scan ScanConfig
}

// ScanConfig bounds the external call volume of one pipeline run.
type ScanConfig struct {
	ChannelLimit        int
	ChannelHistoryLimit int
	MailMaxResults      int
	SourceTimeout       time.Duration
	AnalysisTimeout     time.Duration
	Interval            time.Duration // 0 disables the scheduler
	Dedup               bool
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Scans string `yaml:"scans"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Slack struct {
		APIURL string `yaml:"api_url"`
	} `yaml:"slack"`
	Google struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
	} `yaml:"google"`
	Anthropic struct {
		APIKey    string `yaml:"api_key"`
		Model     string `yaml:"model"`
		BaseURL   string `yaml:"base_url"`
		MaxTokens int    `yaml:"max_tokens"`
	} `yaml:"anthropic"`
	Scan struct {
		ChannelLimit        int    `yaml:"channel_limit"`
		ChannelHistoryLimit int    `yaml:"channel_history_limit"`
		MailMaxResults      int    `yaml:"mail_max_results"`
		SourceTimeout       string `yaml:"source_timeout"`
		AnalysisTimeout     string `yaml:"analysis_timeout"`
		Interval            string `yaml:"interval"`
		Dedup               *bool  `yaml:"dedup"`
	} `yaml:"scan"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. A .env file in the working directory is loaded
// first if present. A missing config file is not an error: every setting
// has an environment fallback.
func Load() (*Config, error) {
	_ = godotenv.Load()

	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		slog.Info("no config file, using environment only", "path", configPath)
	default:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	return fromRaw(raw)
}

func fromRaw(raw rawConfig) (*Config, error) {
	dedup := envOrDefaultBool("SCAN_DEDUP", true)
	if raw.Scan.Dedup != nil {
		dedup = *raw.Scan.Dedup
	}

	cfg := &Config{
		Port:               firstPositive(raw.Server.Port, envOrDefaultInt("PORT", 8080)),
		DatabaseURL:        firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:           firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		ScansQueue:         firstNonEmpty(raw.Redis.Queues.Scans, envOrDefault("SCANS_QUEUE", "scans")),
		JWTSecret:          firstNonEmpty(raw.Auth.JWTSecret, os.Getenv("JWT_SECRET")),
		SlackAPIURL:        firstNonEmpty(raw.Slack.APIURL, os.Getenv("SLACK_API_URL")),
		GoogleClientID:     firstNonEmpty(raw.Google.ClientID, os.Getenv("GOOGLE_CLIENT_ID")),
		GoogleClientSecret: firstNonEmpty(raw.Google.ClientSecret, os.Getenv("GOOGLE_CLIENT_SECRET")),
		AnthropicAPIKey:    firstNonEmpty(raw.Anthropic.APIKey, os.Getenv("ANTHROPIC_API_KEY")),
		AnthropicModel:     firstNonEmpty(raw.Anthropic.Model, envOrDefault("ANTHROPIC_MODEL", "claude-sonnet-4-5")),
		AnthropicBaseURL:   firstNonEmpty(raw.Anthropic.BaseURL, os.Getenv("ANTHROPIC_BASE_URL")),
		AnthropicMaxTokens: firstPositive(raw.Anthropic.MaxTokens, envOrDefaultInt("ANTHROPIC_MAX_TOKENS", 4096)),
		Scan: ScanConfig{
			ChannelLimit:        firstPositive(raw.Scan.ChannelLimit, envOrDefaultInt("SCAN_CHANNEL_LIMIT", 5)),
			ChannelHistoryLimit: firstPositive(raw.Scan.ChannelHistoryLimit, envOrDefaultInt("SCAN_CHANNEL_HISTORY_LIMIT", 10)),
			MailMaxResults:      firstPositive(raw.Scan.MailMaxResults, envOrDefaultInt("SCAN_MAIL_MAX_RESULTS", 100)),
			SourceTimeout:       durationOr(raw.Scan.SourceTimeout, envOrDefaultDuration("SCAN_SOURCE_TIMEOUT", 60*time.Second)),
			AnalysisTimeout:     durationOr(raw.Scan.AnalysisTimeout, envOrDefaultDuration("SCAN_ANALYSIS_TIMEOUT", 120*time.Second)),
			Interval:            durationOr(raw.Scan.Interval, envOrDefaultDuration("SCAN_INTERVAL", 0)),
			Dedup:               dedup,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings. Missing provider OAuth credentials
// only disable the corresponding integration and are reported as warnings.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.AnthropicAPIKey == "" {
		missing = append(missing, "ANTHROPIC_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if !c.GmailConfigured() {
		slog.Warn("google OAuth client not configured, gmail token refresh will fail once access tokens expire")
	}
	return nil
}

// SlackConfigured reports whether a custom Slack API endpoint is set. Slack
// integrations use their stored bot token and need no client credentials.
func (c *Config) SlackConfigured() bool {
	return c.SlackAPIURL != ""
}

// GmailConfigured reports whether Google OAuth client credentials are set.
func (c *Config) GmailConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration in config, using fallback", "value", raw, "fallback", fallback)
		return fallback
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// ParseLogLevel maps a LOG_LEVEL value (debug, info, warn, error) to a
// slog level. Unknown values yield Info.
func ParseLogLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
