// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package procmon implements the process monitor (C7): periodic
// enumeration of "assistants of interest" by command substring, plus a
// bounded-timeout liveness probe used by the subordinate supervisor.
package procmon

import (
	"context"
	"strings"
	"sync"
	"time"

	gops "github.com/mitchellh/go-ps"
)

const defaultInterval = 1 * time.Second

// Event is either a ProcessStarted or ProcessStopped.
type Event interface{ isProcmonEvent() }

// ProcessStarted is emitted the first time a command matching the
// configured substring is observed, including pre-existing matches
// found on the first enumeration pass.
type ProcessStarted struct {
	PID     int
	Cmdline string
}

// ProcessStopped is emitted when a previously-seen PID is no longer
// present. ExitCode is nil: enumeration alone can't recover the exit
// status of a process that has already disappeared.
type ProcessStopped struct {
	PID      int
	ExitCode *int
}

func (ProcessStarted) isProcmonEvent() {}
func (ProcessStopped) isProcmonEvent() {}

// lister abstracts process enumeration so tests can inject a fake
// process table instead of scanning the real OS.
type lister func() ([]gops.Process, error)

// Monitor periodically enumerates running processes and reports the
// appearance/disappearance of ones whose executable name contains
// matchSubstring. For any given PID, ProcessStarted always precedes
// ProcessStopped, and no further events follow ProcessStopped for that
// PID — a reused PID produces a new ProcessStarted, not a stale one.
type Monitor struct {
	matchSubstring string
	interval       time.Duration
	list           lister

	events chan Event
	errs   chan error

	mu   sync.Mutex
	seen map[int]string
}

// New creates a Monitor that matches on matchSubstring at the given
// cadence (0 selects the 1s default).
func New(matchSubstring string, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Monitor{
		matchSubstring: matchSubstring,
		interval:       interval,
		list:           gops.Processes,
		events:         make(chan Event, 64),
		errs:           make(chan error, 4),
		seen:           make(map[int]string),
	}
}

// Events returns the channel of ProcessStarted/ProcessStopped events.
func (m *Monitor) Events() <-chan Event { return m.events }

// Errors returns the channel of transient enumeration failures. The
// monitor logs nothing itself; callers decide how to surface these.
func (m *Monitor) Errors() <-chan error { return m.errs }

// Run scans at the configured cadence until ctx is cancelled. It
// performs one scan immediately on entry so pre-existing matching
// processes are reported without waiting a full interval.
func (m *Monitor) Run(ctx context.Context) {
	m.scan()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scan()
		}
	}
}

func (m *Monitor) scan() {
	procs, err := m.list()
	if err != nil {
		select {
		case m.errs <- err:
		default:
		}
		return
	}

	current := make(map[int]string, len(procs))
	for _, p := range procs {
		exe := p.Executable()
		if m.matchSubstring != "" && !strings.Contains(exe, m.matchSubstring) {
			continue
		}
		current[p.Pid()] = exe
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for pid, exe := range current {
		if _, ok := m.seen[pid]; !ok {
			m.seen[pid] = exe
			m.emit(ProcessStarted{PID: pid, Cmdline: exe})
		}
	}

	for pid := range m.seen {
		if _, ok := current[pid]; !ok {
			delete(m.seen, pid)
			m.emit(ProcessStopped{PID: pid})
		}
	}
}

func (m *Monitor) emit(e Event) {
	select {
	case m.events <- e:
	default:
		// Event channel is full; the consumer has fallen badly behind.
		// Dropping here matches the async event-bus drop-on-full
		// contract elsewhere in the daemon rather than blocking the
		// scan loop.
	}
}
