// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package pidlock enforces single-instance operation of the daemon
// using an advisory file lock plus a human-readable PID file, with
// stale-lock detection by OS process probe.
package pidlock

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned when another live process holds the lock.
var ErrAlreadyRunning = fmt.Errorf("palingenesis is already running")

// Lock represents an acquired single-instance lock.
type Lock struct {
	pidFile string
	fl      *flock.Flock
}

// Acquire takes the single-instance lock backed by pidFile.
//
// If the lock file is held by a live process, ErrAlreadyRunning is
// returned. If a PID file exists but its process is not running
// (stale), it is silently replaced and a warning is logged by the
// caller's discretion (the stale flag is returned so callers can log
// it with whatever logger they use).
func Acquire(pidFile string) (*Lock, stale bool, err error) {
	lockPath := pidFile + ".lock"
	fl := flock.New(lockPath)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock: %w", err)
	}

	if !locked {
		return nil, false, ErrAlreadyRunning
	}

	stale = isStale(pidFile)

	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		fl.Unlock()
		return nil, false, fmt.Errorf("write pid file: %w", err)
	}

	return &Lock{pidFile: pidFile, fl: fl}, stale, nil
}

// Release removes the PID file and releases the advisory lock.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	os.Remove(l.pidFile)
	return l.fl.Unlock()
}

// isStale reports whether pidFile names a PID that is no longer
// running. A missing PID file is not considered stale — there's
// nothing to clean up; an unparsable one is.
func isStale(pidFile string) bool {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return true
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return true
	}

	// On Unix, FindProcess always succeeds; Signal(0) is the actual probe.
	if err := proc.Signal(processProbeSignal); err != nil {
		return true
	}

	return false
}

// Running reports whether the PID recorded in pidFile is alive,
// without acquiring the lock. Used by CLI `daemon status` to decide
// whether to report "not running" vs. attempting a connection.
func Running(pidFile string) (pid int, running bool) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, false
	}

	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, false
	}

	if err := proc.Signal(processProbeSignal); err != nil {
		return pid, false
	}

	return pid, true
}
