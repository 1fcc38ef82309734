// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package statestore persists the daemon's lifecycle state and stats
// counters with atomic write-to-temp-then-rename semantics, and
// reloads them on startup.
package statestore

import "time"

// CurrentSchemaVersion is bumped whenever State's on-disk shape
// changes incompatibly. Readers that see an unrecognized version fall
// back to defaults rather than failing to start.
const CurrentSchemaVersion = 1

// Phase is the daemon lifecycle state.
type Phase string

const (
	PhaseStarting   Phase = "starting"
	PhaseMonitoring Phase = "monitoring"
	PhasePaused     Phase = "paused"
	PhaseResuming   Phase = "resuming"
	PhaseWaiting    Phase = "waiting"
	PhaseStopping   Phase = "stopping"
)

// Stats are the monotonically-increasing counters the daemon reports.
type Stats struct {
	SavesCount         uint64    `json:"saves_count"`
	SuccessfulResumes  uint64    `json:"successful_resumes"`
	FailedResumes      uint64    `json:"failed_resumes"`
	RateLimits         uint64    `json:"rate_limits"`
	ContextExhaustions uint64    `json:"context_exhaustions"`
	TimeSavedSeconds   float64   `json:"time_saved_seconds"`
	StartedAt          time.Time `json:"started_at"`
}

// State is the full persisted daemon record.
type State struct {
	SchemaVersion     int       `json:"schema_version"`
	Phase             Phase     `json:"state"`
	CurrentSession    string    `json:"current_session,omitempty"`
	Stats             Stats     `json:"stats"`
	StartedAt         time.Time `json:"started_at"`
	LastAuditRotation int       `json:"last_audit_rotation"`
}

// Default returns a freshly-initialized state for a new daemon run.
func Default() State {
	now := time.Now().UTC()
	return State{
		SchemaVersion: CurrentSchemaVersion,
		Phase:         PhaseStarting,
		Stats: Stats{
			StartedAt: now,
		},
		StartedAt: now,
	}
}

// TimeSavedHuman renders TimeSavedSeconds as e.g. "1h23m" for display.
func (s State) TimeSavedHuman() string {
	return time.Duration(s.Stats.TimeSavedSeconds * float64(time.Second)).Round(time.Second).String()
}
