// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package subordinate

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/wingedpig/palingenesis/internal/backoff"
	"github.com/wingedpig/palingenesis/internal/procmon"
)

const defaultStableWindow = 60 * time.Second

// Config describes one managed subordinate.
type Config struct {
	Command             []string
	Dir                 string
	AutoRestart         bool
	RestartOnNormalExit bool
	RestartDelay        time.Duration
	StableWindow        time.Duration // default 60s
	UsePTY              bool
	Backoff             backoff.Config

	// HealthURL, if set, is probed only when Alive is called, with a
	// timeout of half of PollInterval. The supervisor does not poll it on
	// its own, emits no event for a failed probe, and never restarts
	// because of one.
	HealthURL    string
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.StableWindow <= 0 {
		c.StableWindow = defaultStableWindow
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	return c
}

// Supervisor owns one subordinate's lifecycle.
type Supervisor struct {
	cfg    Config
	engine *backoff.Engine
	probe  *procmon.LivenessProbe

	mu           sync.Mutex
	state        State
	cmd          *exec.Cmd
	startedAt    time.Time
	restartCount int

	events chan Event
}

// New builds a Supervisor. engine may be nil if AutoRestart is false.
func New(cfg Config, engine *backoff.Engine) *Supervisor {
	cfg = cfg.withDefaults()
	s := &Supervisor{
		cfg:    cfg,
		engine: engine,
		state:  NotRunning,
		events: make(chan Event, 32),
	}
	if cfg.HealthURL != "" {
		s.probe = procmon.NewLivenessProbe(cfg.HealthURL, cfg.PollInterval/2)
	}
	return s
}

// Events returns the channel of lifecycle events.
func (s *Supervisor) Events() <-chan Event { return s.events }

// Run starts the subordinate and supervises it until ctx is
// cancelled, applying auto-restart per the configured policy.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := s.spawn(ctx); err != nil {
			return fmt.Errorf("spawn subordinate: %w", err)
		}

		exitKind, exitCode, sig := s.wait()

		select {
		case <-ctx.Done():
			s.setState(NotRunning, Event{State: NotRunning, ExitKind: exitKind, ExitCode: exitCode, Signal: sig})
			return nil
		default:
		}

		abnormal := exitKind != ExitNormal
		shouldRestart := s.cfg.AutoRestart && (abnormal || s.cfg.RestartOnNormalExit)

		if !shouldRestart {
			s.setState(NotRunning, Event{State: NotRunning, ExitKind: exitKind, ExitCode: exitCode, Signal: sig})
			return nil
		}

		s.mu.Lock()
		if time.Since(s.startedAt) >= s.cfg.StableWindow {
			s.restartCount = 0
		}
		s.restartCount++
		attempt := s.restartCount
		s.mu.Unlock()

		if s.engine != nil {
			if err := s.engine.CheckRetryLimit(attempt); err != nil {
				s.setState(NotRunning, Event{State: NotRunning, Note: err.Error()})
				return err
			}
		}

		s.setState(Restarting, Event{State: Restarting, Attempt: attempt})

		delay := s.cfg.RestartDelay
		if s.engine != nil {
			delay = s.engine.DelayForAttempt(attempt)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			s.setState(NotRunning, Event{State: NotRunning})
			return nil
		}
	}
}

func (s *Supervisor) spawn(ctx context.Context) error {
	if len(s.cfg.Command) == 0 {
		return fmt.Errorf("empty command")
	}

	s.setState(Starting, Event{State: Starting})

	cmd := exec.CommandContext(ctx, s.cfg.Command[0], s.cfg.Command[1:]...)
	cmd.Dir = s.cfg.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var startErr error
	if s.cfg.UsePTY {
		_, startErr = pty.Start(cmd)
	} else {
		startErr = cmd.Start()
	}
	if startErr != nil {
		return startErr
	}

	s.mu.Lock()
	s.cmd = cmd
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.setState(Running, Event{State: Running})
	return nil
}

func (s *Supervisor) wait() (ExitKind, int, string) {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()

	err := cmd.Wait()
	if err == nil {
		return ExitNormal, 0, ""
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return ExitSignal, -1, status.Signal().String()
		}
		code := exitErr.ExitCode()
		if code == 0 {
			return ExitNormal, 0, ""
		}
		return ExitCrash, code, ""
	}

	return ExitCrash, -1, ""
}

func (s *Supervisor) setState(state State, ev Event) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	ev.State = state
	select {
	case s.events <- ev:
	default:
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stop signals the subordinate's process group to terminate.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

// Alive reports the subordinate's HTTP liveness, if a HealthURL is
// configured. Returns true (no opinion) when none is configured.
func (s *Supervisor) Alive(ctx context.Context) bool {
	if s.probe == nil {
		return true
	}
	return s.probe.Alive(ctx)
}
