// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package strategy

import (
	"fmt"
	"time"

	"github.com/wingedpig/palingenesis/internal/audit"
	"github.com/wingedpig/palingenesis/internal/backoff"
)

// defaultManualRestartSeconds is the assumed human cost of discovering
// and manually resuming a stalled session, added to time_saved_seconds
// on a successful automated resume. Configurable 60..1800, default 300.
const defaultManualRestartSeconds = 300

// SameSession resumes a stopped session in place. Used for RateLimit:
// the subordinate just needs to wait out the limit and continue.
type SameSession struct {
	Backoff              *backoff.Engine
	ManualRestartSeconds float64
}

func NewSameSession(engine *backoff.Engine, manualRestartSeconds float64) *SameSession {
	if manualRestartSeconds <= 0 {
		manualRestartSeconds = defaultManualRestartSeconds
	}
	return &SameSession{Backoff: engine, ManualRestartSeconds: manualRestartSeconds}
}

func (s *SameSession) Name() string { return "same_session" }

func (s *SameSession) Execute(ctx ResumeContext, caps Capabilities, sub Subordinate, cancel <-chan struct{}) Outcome {
	if err := s.Backoff.CheckRetryLimit(ctx.AttemptNumber); err != nil {
		return Failure(false, err.Error())
	}

	wait := ctx.RetryAfter
	if wait <= 0 {
		wait = s.Backoff.DelayForAttempt(ctx.AttemptNumber)
	}

	if !sleepOrCancel(wait, cancel) {
		return Cancelled()
	}

	if err := sub.ContinueSession(ctx.SessionPath); err != nil {
		caps.WriteAudit(audit.Entry{
			EventType:        audit.EventResumeFailed,
			SessionPath:      ctx.SessionPath,
			StopReason:       string(ctx.StopReason),
			RetryAfterSource: string(ctx.RetryAfterSource),
			ActionTaken:      s.Name(),
			Outcome:          audit.OutcomeFailure,
			Metadata:         map[string]any{"error": err.Error(), "attempt": ctx.AttemptNumber},
		})

		if ctx.AttemptNumber < s.Backoff.MaxRetries() {
			next := s.Backoff.DelayForAttempt(ctx.AttemptNumber + 1)
			return Delayed(next, err.Error())
		}
		return Failure(false, fmt.Sprintf("resume failed after %d attempts: %v", ctx.AttemptNumber, err))
	}

	caps.IncrementCounter("successful_resumes", 1)
	caps.AddTimeSaved(wait.Seconds() + s.ManualRestartSeconds)
	_ = caps.Persist() // a persist failure doesn't undo a completed resume

	caps.WriteAudit(audit.Entry{
		EventType:        audit.EventResumeCompleted,
		SessionPath:      ctx.SessionPath,
		StopReason:       string(ctx.StopReason),
		RetryAfterSource: string(ctx.RetryAfterSource),
		ActionTaken:      s.Name(),
		Outcome:          audit.OutcomeSuccess,
		Metadata:         map[string]any{"attempt": ctx.AttemptNumber},
	})
	caps.Broadcast("resume.success", ctx.SessionPath)

	return Success(ctx.SessionPath, "resumed same session")
}

func (s *SameSession) ShouldRetry(o Outcome) bool {
	return o.Kind() == OutcomeDelayed
}

// sleepOrCancel waits for d, or returns false early if cancel fires.
func sleepOrCancel(d time.Duration, cancel <-chan struct{}) bool {
	if d <= 0 {
		select {
		case <-cancel:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-cancel:
		return false
	}
}
