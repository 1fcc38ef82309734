// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package paths resolves the per-user config, state, and runtime
// directories the daemon reads and writes, and enforces the secure
// permissions described by the filesystem layout in the spec.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "palingenesis"

// Dirs holds the resolved directory layout for one user.
type Dirs struct {
	Config  string // config.toml lives here
	State   string // state.json, audit.jsonl[.N], backups/
	Runtime string // palingenesis.pid, palingenesis.sock
}

// Resolve computes the platform-specific directory layout and ensures
// each directory exists with secure permissions. It never refuses to
// run on platforms without POSIX modes; it only warns.
func Resolve() (Dirs, error) {
	d := Dirs{
		Config:  configDir(),
		State:   stateDir(),
		Runtime: runtimeDir(),
	}

	for _, dir := range []string{d.Config, d.State, d.Runtime} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return Dirs{}, fmt.Errorf("create dir %s: %w", dir, err)
		}
		if err := enforceMode(dir, 0o700); err != nil {
			fmt.Fprintf(os.Stderr, "palingenesis: warning: could not set permissions on %s: %v\n", dir, err)
		}
	}

	if err := os.MkdirAll(filepath.Join(d.State, "backups"), 0o700); err != nil {
		return Dirs{}, fmt.Errorf("create backups dir: %w", err)
	}

	return d, nil
}

// ConfigFile returns the path to config.toml.
func (d Dirs) ConfigFile() string {
	return filepath.Join(d.Config, "config.toml")
}

// StateFile returns the path to state.json.
func (d Dirs) StateFile() string {
	return filepath.Join(d.State, "state.json")
}

// AuditFile returns the path to the active audit.jsonl.
func (d Dirs) AuditFile() string {
	return filepath.Join(d.State, "audit.jsonl")
}

// BackupsDir returns the backups directory.
func (d Dirs) BackupsDir() string {
	return filepath.Join(d.State, "backups")
}

// PIDFile returns the path to palingenesis.pid.
func (d Dirs) PIDFile() string {
	return filepath.Join(d.Runtime, "palingenesis.pid")
}

// SocketFile returns the path to palingenesis.sock.
func (d Dirs) SocketFile() string {
	return filepath.Join(d.Runtime, "palingenesis.sock")
}

func configDir() string {
	if runtime.GOOS == "darwin" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", appName)
		}
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appName)
}

func stateDir() string {
	if runtime.GOOS == "darwin" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", appName)
		}
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", appName)
}

func runtimeDir() string {
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	// Fall back to a per-user tmp directory when XDG_RUNTIME_DIR
	// isn't set (e.g. macOS, or a Linux box without a session manager).
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d", appName, os.Getuid()))
}

func enforceMode(path string, mode os.FileMode) error {
	return os.Chmod(path, mode)
}
