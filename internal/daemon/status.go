// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"errors"
	"time"

	"github.com/wingedpig/palingenesis/internal/statestore"
)

// Status is the read-only snapshot returned to the CLI, HTTP, and RPC
// surfaces by Status().
type Status struct {
	State            statestore.Phase `json:"state"`
	UptimeSeconds    float64          `json:"uptime_s"`
	CurrentSession   string           `json:"current_session,omitempty"`
	Stats            statestore.Stats `json:"stats"`
	TimeSavedSeconds float64          `json:"time_saved_seconds"`
	TimeSavedHuman   string           `json:"time_saved_human"`
}

// NotFoundError is returned by NewSessionNow when there is no stopped
// session to replace.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// AlreadyError is returned by Pause/Resume when the daemon is already
// in the requested phase. Callers treat this as a non-error "OK
// already ..." response, not a failure.
type AlreadyError struct {
	Message string
}

func (e *AlreadyError) Error() string { return e.Message }

// ErrShuttingDown is returned by any control method once shutdown has
// been initiated.
var ErrShuttingDown = errors.New("shutting down")

func uptimeSince(t time.Time) float64 {
	return time.Since(t).Seconds()
}
