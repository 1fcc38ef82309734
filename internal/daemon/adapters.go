// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wingedpig/palingenesis/internal/audit"
	"github.com/wingedpig/palingenesis/internal/config"
	"github.com/wingedpig/palingenesis/internal/events"
	"github.com/wingedpig/palingenesis/internal/statestore"
)

// backupSessionFile copies sessionPath into backupDir, named with the
// original stem plus a monotonic timestamp, mirroring the strategy
// package's own backup-on-new-session behavior (internal/strategy's
// NewSession.backup) for the forced-replacement control path.
func backupSessionFile(sessionPath, backupDir string) (string, error) {
	if backupDir == "" {
		return "", fmt.Errorf("no backup directory configured")
	}
	if err := os.MkdirAll(backupDir, 0o700); err != nil {
		return "", err
	}

	data, err := os.ReadFile(sessionPath)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%d%s",
		strings.TrimSuffix(filepath.Base(sessionPath), filepath.Ext(sessionPath)),
		time.Now().UnixNano(),
		filepath.Ext(sessionPath),
	)
	dst := filepath.Join(backupDir, name)
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return "", err
	}
	return dst, nil
}

// capsAdapter implements strategy.Capabilities over the daemon's
// owned state store, audit log, and event bus. It never touches the
// run loop's phase directly — counters and persistence flow through
// the store's own write lock.
type capsAdapter struct {
	store *statestore.Store
	audit *audit.Log
	bus   events.EventBus
	log   zerolog.Logger
}

func (c *capsAdapter) IncrementCounter(name string, delta uint64) {
	err := c.store.Mutate(func(s *statestore.State) {
		switch name {
		case "successful_resumes":
			s.Stats.SuccessfulResumes += delta
		case "failed_resumes":
			s.Stats.FailedResumes += delta
		case "rate_limits":
			s.Stats.RateLimits += delta
		case "context_exhaustions":
			s.Stats.ContextExhaustions += delta
		case "session_created":
			s.Stats.SavesCount += delta
		}
	})
	if err != nil {
		c.log.Warn().Err(err).Str("counter", name).Msg("failed to persist counter increment")
	}
}

func (c *capsAdapter) AddTimeSaved(seconds float64) {
	err := c.store.Mutate(func(s *statestore.State) {
		s.Stats.TimeSavedSeconds += seconds
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to persist time_saved_seconds")
	}
}

func (c *capsAdapter) Persist() error {
	return c.store.Mutate(func(*statestore.State) {})
}

func (c *capsAdapter) WriteAudit(entry audit.Entry) error {
	return c.audit.Write(entry)
}

func (c *capsAdapter) Broadcast(topic string, payload any) {
	fields, _ := payload.(map[string]any)
	if fields == nil && payload != nil {
		fields = map[string]any{"value": payload}
	}
	if err := c.bus.Publish(context.Background(), events.Event{Type: topic, Payload: fields}); err != nil {
		c.log.Debug().Err(err).Str("topic", topic).Msg("broadcast failed")
	}
}

// subordinateAdapter binds the abstract "continue an existing
// session" / "start a fresh session with a seed prompt" operations
// (spec §9's open question) to exec.Command invocations, configured
// by config.ResumeConfig's ContinueCommand/NewSessionCommand argv
// templates. When a template is left unset, it falls back to
// `<assistant> --continue` / `<assistant> {{prompt}}`, where
// <assistant> is the command substring last observed running by the
// process monitor.
type subordinateAdapter struct {
	cfg          *config.Holder
	lastExe      func() string // returns the last-seen assistant command, or ""
	execTimeout  time.Duration
	commandRunFn func(ctx context.Context, name string, args []string, dir string) ([]byte, error)
}

func newSubordinateAdapter(cfg *config.Holder, lastExe func() string) *subordinateAdapter {
	return &subordinateAdapter{
		cfg:          cfg,
		lastExe:      lastExe,
		execTimeout:  30 * time.Second,
		commandRunFn: runCommand,
	}
}

func runCommand(ctx context.Context, name string, args []string, dir string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (a *subordinateAdapter) ContinueSession(sessionPath string) error {
	dir := dirOf(sessionPath)
	rc := a.cfg.Get().Resume

	argv := rc.ContinueCommand
	if len(argv) == 0 {
		argv = []string{a.assistantOrDefault(), "--continue"}
	}

	replacer := strings.NewReplacer("{{session}}", dir, "{{dir}}", dir)
	resolved := substituteArgv(argv, replacer)

	ctx, cancel := context.WithTimeout(context.Background(), a.execTimeout)
	defer cancel()

	_, err := a.commandRunFn(ctx, resolved[0], resolved[1:], dir)
	return err
}

func (a *subordinateAdapter) StartNewSession(dir, prompt string) (string, error) {
	rc := a.cfg.Get().Resume

	argv := rc.NewSessionCommand
	if len(argv) == 0 {
		argv = []string{a.assistantOrDefault(), "{{prompt}}"}
	}

	replacer := strings.NewReplacer("{{prompt}}", prompt, "{{dir}}", dir)
	resolved := substituteArgv(argv, replacer)

	ctx, cancel := context.WithTimeout(context.Background(), a.execTimeout)
	defer cancel()

	out, err := a.commandRunFn(ctx, resolved[0], resolved[1:], dir)
	if err != nil {
		return "", err
	}

	newPath := strings.TrimSpace(string(out))
	if newPath == "" {
		return "", fmt.Errorf("new session command produced no session path on stdout")
	}
	return newPath, nil
}

func (a *subordinateAdapter) assistantOrDefault() string {
	if a.lastExe != nil {
		if exe := a.lastExe(); exe != "" {
			return exe
		}
	}
	return "claude"
}

func substituteArgv(argv []string, replacer *strings.Replacer) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = replacer.Replace(a)
	}
	return out
}

func dirOf(path string) string {
	return filepath.Dir(path)
}
