// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for TimeNest clients.
//
// Configuration is loaded from a single file specified by:
//   - TIMENEST_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures deterministic,
// auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections (development,
// staging, production) that override base values when the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the TimeNest chat client.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// API configures the request/response chat service client.
	API APIConfig `yaml:"api"`

	// Realtime configures the live connection.
	Realtime RealtimeConfig `yaml:"realtime"`

	// Session configures credential persistence and monitoring.
	Session SessionConfig `yaml:"session"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	API      *APIConfig      `yaml:"api,omitempty"`
	Realtime *RealtimeConfig `yaml:"realtime,omitempty"`
	Session  *SessionConfig  `yaml:"session,omitempty"`
}

// APIConfig configures the chat service client.
type APIConfig struct {
	// BaseURL is the chat service's base URL.
	// Default: http://localhost:8000
	BaseURL string `yaml:"base_url"`

	// RequestTimeout bounds each request/response call.
	// Default: 15s
	RequestTimeout string `yaml:"request_timeout"`
}

// RealtimeConfig configures the live connection.
type RealtimeConfig struct {
	// BaseURL is the realtime endpoint's base URL. The websocket URL
	// is derived from it. Default: the API base URL.
	BaseURL string `yaml:"base_url"`

	// UpgradeInterval is how often a long-poll connection retries the
	// websocket upgrade.
	// Default: 30s
	UpgradeInterval string `yaml:"upgrade_interval"`
}

// SessionConfig configures credential persistence and monitoring.
type SessionConfig struct {
	// DBPath is the SQLite file holding the persisted session.
	// Default: ${HOME}/.local/state/timenest/session.db
	DBPath string `yaml:"db_path"`

	// MonitorInterval is how often the session monitor re-checks
	// credential expiry.
	// Default: 1m
	MonitorInterval string `yaml:"monitor_interval"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file. They exist primarily to
// ensure all fields have sensible zero-values, not as a fallback -
// the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultState := filepath.Join(homeDir, ".local", "state", "timenest")

	return &Config{
		Environment: Development,
		API: APIConfig{
			BaseURL:        "http://localhost:8000",
			RequestTimeout: "15s",
		},
		Realtime: RealtimeConfig{
			BaseURL:         "",
			UpgradeInterval: "30s",
		},
		Session: SessionConfig{
			DBPath:          filepath.Join(defaultState, "session.db"),
			MonitorInterval: "1m",
		},
	}
}

// Load loads configuration from the TIMENEST_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if TIMENEST_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("TIMENEST_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("TIMENEST_CONFIG environment variable not set; " +
			"set it to the path of your timenest.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values. The only expansion performed is ${HOME} and similar
// path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	if cfg.Realtime.BaseURL == "" {
		cfg.Realtime.BaseURL = cfg.API.BaseURL
	}

	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.API != nil {
		if overrides.API.BaseURL != "" {
			c.API.BaseURL = overrides.API.BaseURL
		}
		if overrides.API.RequestTimeout != "" {
			c.API.RequestTimeout = overrides.API.RequestTimeout
		}
	}

	if overrides.Realtime != nil {
		if overrides.Realtime.BaseURL != "" {
			c.Realtime.BaseURL = overrides.Realtime.BaseURL
		}
		if overrides.Realtime.UpgradeInterval != "" {
			c.Realtime.UpgradeInterval = overrides.Realtime.UpgradeInterval
		}
	}

	if overrides.Session != nil {
		if overrides.Session.DBPath != "" {
			c.Session.DBPath = overrides.Session.DBPath
		}
		if overrides.Session.MonitorInterval != "" {
			c.Session.MonitorInterval = overrides.Session.MonitorInterval
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Session.DBPath = expandVars(c.Session.DBPath, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// RequestTimeout returns the parsed API request timeout.
func (c *Config) RequestTimeout() (time.Duration, error) {
	return parseDuration("api.request_timeout", c.API.RequestTimeout)
}

// UpgradeInterval returns the parsed websocket upgrade interval.
func (c *Config) UpgradeInterval() (time.Duration, error) {
	return parseDuration("realtime.upgrade_interval", c.Realtime.UpgradeInterval)
}

// MonitorInterval returns the parsed session monitor interval.
func (c *Config) MonitorInterval() (time.Duration, error) {
	return parseDuration("session.monitor_interval", c.Session.MonitorInterval)
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", field, value)
	}
	return d, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.API.BaseURL == "" {
		errs = append(errs, fmt.Errorf("api.base_url is required"))
	}
	if c.Session.DBPath == "" {
		errs = append(errs, fmt.Errorf("session.db_path is required"))
	}
	if _, err := c.RequestTimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.UpgradeInterval(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.MonitorInterval(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
