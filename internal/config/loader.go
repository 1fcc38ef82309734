// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Loader handles configuration file loading.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses config.toml at path into a typed Config. Defaults are
// not applied; call LoadWithDefaults for the normal startup path.
func (l *Loader) Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	return &cfg, nil
}

// LoadWithDefaults loads config with default values applied.
func (l *Loader) LoadWithDefaults(path string) (*Config, error) {
	cfg, err := l.Load(path)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Save writes cfg to path as TOML, creating the file with mode 0600.
func (l *Loader) Save(cfg *Config, path string) error {
	f, err := os.OpenFile(path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open config for write: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	return nil
}

// Default returns a Config with every default applied, suitable for
// `config init`.
func Default() *Config {
	cfg := &Config{Monitoring: MonitoringConfig{AutoDetect: true}}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing config fields, per the
// spec's per-option defaults in §6.
func applyDefaults(cfg *Config) {
	if cfg.Daemon.LogLevel == "" {
		cfg.Daemon.LogLevel = "info"
	}
	if cfg.Daemon.HTTPPort == 0 {
		cfg.Daemon.HTTPPort = 8787
	}
	if cfg.Daemon.HTTPBind == "" {
		cfg.Daemon.HTTPBind = "127.0.0.1"
	}

	if cfg.Monitoring.DebounceMs == 0 {
		cfg.Monitoring.DebounceMs = 100
	}

	if cfg.Resume.BaseDelaySecs == 0 {
		cfg.Resume.BaseDelaySecs = 5
	}
	if cfg.Resume.MaxDelaySecs == 0 {
		cfg.Resume.MaxDelaySecs = 300
	}
	if cfg.Resume.MaxRetries == 0 {
		cfg.Resume.MaxRetries = 10
	}
	if cfg.Resume.BackupCount == 0 {
		cfg.Resume.BackupCount = 10
	}

	if cfg.Metrics.ManualRestartTimeSeconds == 0 {
		cfg.Metrics.ManualRestartTimeSeconds = 300
	}

	if cfg.Subordinate.Enabled {
		if cfg.Subordinate.RestartDelayMs == 0 {
			cfg.Subordinate.RestartDelayMs = 1000
		}
		if cfg.Subordinate.MaxRestartAttempts == 0 {
			cfg.Subordinate.MaxRestartAttempts = 10
		}
		if cfg.Subordinate.HealthTimeoutMs == 0 {
			cfg.Subordinate.HealthTimeoutMs = 2000
		}
		if cfg.Subordinate.PollIntervalMs == 0 {
			cfg.Subordinate.PollIntervalMs = 1000
		}
		if cfg.Subordinate.ServeHostname == "" {
			cfg.Subordinate.ServeHostname = "127.0.0.1"
		}
	}
}
