// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration against schema rules.
type Validator struct{}

// NewValidator creates a new config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError accumulates every field-level failure found in one
// validation pass rather than bailing on the first.
type ValidationError struct {
	Errors []FieldError
}

// FieldError is one validation failure, with an optional suggestion
// for how to fix it.
type FieldError struct {
	Field      string
	Message    string
	Suggestion string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msg := fmt.Sprintf("%s: %s", fe.Field, fe.Message)
		if fe.Suggestion != "" {
			msg += " (" + fe.Suggestion + ")"
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e *ValidationError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// Add records a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// AddSuggestion records a field error with a fix suggestion.
func (e *ValidationError) AddSuggestion(field, message, suggestion string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message, Suggestion: suggestion})
}

// Validate checks configuration validity, per §6's per-option bounds.
func (v *Validator) Validate(cfg *Config) error {
	errs := &ValidationError{}

	v.validateDaemon(cfg, errs)
	v.validateMonitoring(cfg, errs)
	v.validateResume(cfg, errs)
	v.validateMetrics(cfg, errs)
	v.validateSubordinate(cfg, errs)

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func (v *Validator) validateDaemon(cfg *Config, errs *ValidationError) {
	switch cfg.Daemon.LogLevel {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		errs.AddSuggestion("daemon.log_level",
			fmt.Sprintf("invalid level %q", cfg.Daemon.LogLevel),
			"use one of trace, debug, info, warn, error")
	}

	if cfg.Daemon.HTTPEnabled {
		if cfg.Daemon.HTTPPort < 1 || cfg.Daemon.HTTPPort > 65535 {
			errs.Add("daemon.http_port", "must be between 1 and 65535")
		}
		if cfg.Daemon.HTTPBind == "0.0.0.0" {
			errs.AddSuggestion("daemon.http_bind",
				"binds to all interfaces",
				"set daemon.http_bind to 127.0.0.1 unless external access is intended")
		}
	}
}

func (v *Validator) validateMonitoring(cfg *Config, errs *ValidationError) {
	if cfg.Monitoring.DebounceMs < 0 {
		errs.Add("monitoring.debounce_ms", "must not be negative")
	}
	if !cfg.Monitoring.AutoDetect && len(cfg.Monitoring.Assistants) == 0 {
		errs.AddSuggestion("monitoring.assistants",
			"empty with auto_detect disabled",
			"list at least one assistant command substring, or enable auto_detect")
	}
}

func (v *Validator) validateResume(cfg *Config, errs *ValidationError) {
	if cfg.Resume.BaseDelaySecs <= 0 {
		errs.Add("resume.base_delay_secs", "must be greater than 0")
	}
	if cfg.Resume.MaxDelaySecs < cfg.Resume.BaseDelaySecs {
		errs.Add("resume.max_delay_secs", "must be >= resume.base_delay_secs")
	}
	if cfg.Resume.MaxRetries <= 0 {
		errs.Add("resume.max_retries", "must be greater than 0")
	}
}

func (v *Validator) validateMetrics(cfg *Config, errs *ValidationError) {
	if cfg.Metrics.ManualRestartTimeSeconds != 0 &&
		(cfg.Metrics.ManualRestartTimeSeconds < 60 || cfg.Metrics.ManualRestartTimeSeconds > 1800) {
		errs.Add("metrics.manual_restart_time_seconds", "must be between 60 and 1800")
	}
}

func (v *Validator) validateSubordinate(cfg *Config, errs *ValidationError) {
	if !cfg.Subordinate.Enabled {
		return
	}
	if cfg.Subordinate.ServePort < 1 || cfg.Subordinate.ServePort > 65535 {
		errs.Add("subordinate.serve_port", "must be between 1 and 65535")
	}
	if cfg.Subordinate.RestartDelayMs <= 0 {
		errs.Add("subordinate.restart_delay_ms", "must be greater than 0")
	}
	if cfg.Subordinate.HealthTimeoutMs < 100 || cfg.Subordinate.HealthTimeoutMs > 30000 {
		errs.Add("subordinate.health_timeout_ms", "must be between 100 and 30000")
	}
	if cfg.Subordinate.PollIntervalMs < 100 {
		errs.Add("subordinate.poll_interval_ms", "must be >= 100")
	}
}
