// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles TOML configuration loading, defaulting,
// validation, and hot reload for the daemon.
package config

// Config is the root configuration structure for palingenesis.
type Config struct {
	Daemon        DaemonConfig        `toml:"daemon"`
	Monitoring    MonitoringConfig    `toml:"monitoring"`
	Resume        ResumeConfig        `toml:"resume"`
	Metrics       MetricsConfig       `toml:"metrics"`
	Subordinate   SubordinateConfig   `toml:"subordinate"`
	Notifications NotificationsConfig `toml:"notifications"`
	Otel          OtelConfig          `toml:"otel"`
	Bot           BotConfig           `toml:"bot"`
}

// DaemonConfig controls logging, the HTTP surface, and file locations.
type DaemonConfig struct {
	LogLevel    string `toml:"log_level"`
	HTTPEnabled bool   `toml:"http_enabled"`
	HTTPPort    int    `toml:"http_port"`
	HTTPBind    string `toml:"http_bind"`
	PIDFile     string `toml:"pid_file"`
	LogFile     string `toml:"log_file"`
}

// MonitoringConfig controls session discovery and the watcher.
type MonitoringConfig struct {
	AutoDetect bool     `toml:"auto_detect"`
	Assistants []string `toml:"assistants"`
	DebounceMs int64    `toml:"debounce_ms"`
	SessionDir string   `toml:"session_dir"`
}

// ResumeConfig controls the resume strategies and backoff engine.
//
// ContinueCommand and NewSessionCommand bind the abstract "continue an
// existing session" / "start a fresh session with a seed prompt"
// operations (spec.md §9) to whatever the target assistant CLI actually
// provides. Each is an argv; the daemon substitutes {{session}} with the
// session's working directory, {{prompt}} with the seed prompt text (new
// session only), and {{dir}} with the parent directory a fresh session
// should be started in. Left empty, ContinueCommand defaults to
// `<assistant> --continue` and NewSessionCommand to `<assistant> {{prompt}}`,
// where <assistant> is the command that was running when the session
// stopped.
type ResumeConfig struct {
	Enabled           bool     `toml:"enabled"`
	BaseDelaySecs     int64    `toml:"base_delay_secs"`
	MaxDelaySecs      int64    `toml:"max_delay_secs"`
	MaxRetries        int      `toml:"max_retries"`
	Jitter            bool     `toml:"jitter"`
	BackupCount       uint32   `toml:"backup_count"`
	ContinueCommand   []string `toml:"continue_command"`
	NewSessionCommand []string `toml:"new_session_command"`
}

// MetricsConfig controls the time-saved calculation.
type MetricsConfig struct {
	ManualRestartTimeSeconds int `toml:"manual_restart_time_seconds"`
}

// SubordinateConfig controls the optional managed child process.
type SubordinateConfig struct {
	Enabled             bool   `toml:"enabled"`
	ServePort           int    `toml:"serve_port"`
	ServeHostname       string `toml:"serve_hostname"`
	AutoRestart         bool   `toml:"auto_restart"`
	RestartDelayMs      int64  `toml:"restart_delay_ms"`
	MaxRestartAttempts  int    `toml:"max_restart_attempts"`
	HealthTimeoutMs     int64  `toml:"health_timeout_ms"`
	PollIntervalMs      int64  `toml:"poll_interval_ms"`
	ServeCommand        string `toml:"serve_command"`
	RestartOnNormalExit bool   `toml:"restart_on_normal_exit"`
}

// NotificationsConfig configures external notification sinks. Palingenesis
// core only emits events (§6); delivery is an external collaborator.
type NotificationsConfig struct {
	Webhooks []WebhookConfig `toml:"webhooks"`
	Ntfy     NtfyConfig      `toml:"ntfy"`
	Discord  DiscordConfig   `toml:"discord"`
	Slack    SlackConfig     `toml:"slack"`
}

// WebhookConfig names one outbound webhook target and the events it wants.
type WebhookConfig struct {
	URL    string   `toml:"url"`
	Secret string   `toml:"secret"`
	Events []string `toml:"events"`
}

// NtfyConfig configures ntfy.sh push notifications.
type NtfyConfig struct {
	Enabled bool   `toml:"enabled"`
	Topic   string `toml:"topic"`
	Server  string `toml:"server"`
}

// DiscordConfig configures a Discord webhook sink.
type DiscordConfig struct {
	Enabled    bool   `toml:"enabled"`
	WebhookURL string `toml:"webhook_url"`
}

// SlackConfig configures a Slack webhook sink.
type SlackConfig struct {
	Enabled    bool   `toml:"enabled"`
	WebhookURL string `toml:"webhook_url"`
}

// OtelConfig configures the optional OpenTelemetry exporter. Out of core
// per spec.md §1; carried only as passthrough configuration.
type OtelConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
}

// BotConfig configures the optional Discord/Slack command-bot adapter.
type BotConfig struct {
	Enabled bool   `toml:"enabled"`
	Token   string `toml:"token"`
}
