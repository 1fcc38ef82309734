// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/wingedpig/palingenesis/internal/audit"
	"github.com/wingedpig/palingenesis/internal/classifier"
	"github.com/wingedpig/palingenesis/internal/crashsnapshot"
	"github.com/wingedpig/palingenesis/internal/events"
	"github.com/wingedpig/palingenesis/internal/procmon"
	"github.com/wingedpig/palingenesis/internal/sessionparser"
	"github.com/wingedpig/palingenesis/internal/statestore"
	"github.com/wingedpig/palingenesis/internal/strategy"
	"github.com/wingedpig/palingenesis/internal/subordinate"
	"github.com/wingedpig/palingenesis/internal/watcher"
)

// handleWatchEvent refreshes the cached frontmatter/tail snapshot for
// a session file. It never by itself triggers a resume decision —
// that only happens once the process monitor reports the assistant
// tied to the session has stopped (see handleProcEvent), so a session
// file can be rewritten many times while the assistant is still
// producing output without spuriously re-classifying it.
func (d *Daemon) handleWatchEvent(ev watcher.Event) {
	switch ev.Kind {
	case watcher.Removed:
		delete(d.sessionCache, ev.Path)
		if d.currentPath == ev.Path {
			d.currentPath = ""
		}
		return
	}

	session, err := sessionparser.Parse(ev.Path, d.parseOpts)
	if err != nil {
		d.log.Warn().Err(err).Str("path", ev.Path).Msg("failed to parse session file")
		return
	}
	d.sessionCache[ev.Path] = session
	d.currentPath = ev.Path
}

func (d *Daemon) handleProcEvent(ev procmon.Event) {
	switch e := ev.(type) {
	case procmon.ProcessStarted:
		d.setLastAssistantExe(e.Cmdline)
	case procmon.ProcessStopped:
		d.onAssistantStopped(e)
	}
}

func (d *Daemon) onAssistantStopped(ev procmon.ProcessStopped) {
	phase := d.store.Get().Phase
	if phase == statestore.PhasePaused {
		d.log.Info().Int("pid", ev.PID).Msg("assistant stopped while paused; ignoring")
		return
	}

	path := d.currentPath
	if path == "" {
		d.log.Debug().Int("pid", ev.PID).Msg("assistant stopped but no session file is being tracked")
		return
	}
	session, ok := d.sessionCache[path]
	if !ok {
		var err error
		session, err = sessionparser.Parse(path, d.parseOpts)
		if err != nil {
			d.log.Warn().Err(err).Str("path", path).Msg("could not parse session at stop time")
			return
		}
	}

	result := classifier.Classify(session.TailText, ev.ExitCode, &session.Frontmatter, d.classifyCfg)

	d.bus.Publish(context.Background(), events.Event{
		Type:    events.EventSessionStopped,
		Session: path,
		Payload: map[string]any{"reason": string(result.Reason), "confidence": string(result.Confidence)},
	})

	strat := d.dispatch.Dispatch(result.Reason)
	if strat == nil {
		d.log.Info().Str("reason", string(result.Reason)).Str("path", path).Msg("session stopped, no automatic resume")
		return
	}

	d.startResume(path, result, strat)
}

func (d *Daemon) startResume(path string, classification classifier.Result, strat strategy.Strategy) {
	d.attempt = 1
	d.lastReason = classification.Reason
	d.resumeHistory = nil

	if err := d.store.Mutate(func(s *statestore.State) {
		s.Phase = statestore.PhaseResuming
		s.CurrentSession = path
	}); err != nil {
		d.log.Error().Err(err).Msg("failed to persist Resuming transition")
	}
	d.broadcastStateChange(statestore.PhaseMonitoring, statestore.PhaseResuming)
	d.bus.Publish(context.Background(), events.Event{Type: events.EventResumeStarted, Session: path})

	d.audit.Write(audit.Entry{
		EventType:        audit.EventResumeStarted,
		SessionPath:      path,
		StopReason:       string(classification.Reason),
		RetryAfterSource: string(classification.Source),
		Outcome:          audit.OutcomePending,
	})

	d.runStrategy(strat, strategy.ResumeContext{
		SessionPath:      path,
		StopReason:       classification.Reason,
		RetryAfter:       classification.RetryAfter,
		RetryAfterSource: classification.Source,
		Frontmatter:      frontmatterToMap(d.sessionCache[path].Frontmatter),
		AttemptNumber:    d.attempt,
		ClassifiedAt:     time.Now().UTC(),
	}, classification.Reason)
}

func (d *Daemon) runStrategy(strat strategy.Strategy, ctx strategy.ResumeContext, reason classifier.Reason) {
	d.resumeHistory = append(d.resumeHistory, ctx)
	go func() {
		outcome := strat.Execute(ctx, d.caps, d.subAdapter, d.cancelCh)
		select {
		case d.resultCh <- result{outcome: outcome, reason: reason, ctx: ctx}:
		case <-d.stopped:
		}
	}()
}

func (d *Daemon) handleResult(r result) {
	switch r.outcome.Kind() {
	case strategy.OutcomeSuccess:
		d.attempt = 0
		d.store.Mutate(func(s *statestore.State) {
			s.Phase = statestore.PhaseMonitoring
			s.CurrentSession = r.outcome.SessionPath()
		})
		d.broadcastStateChange(statestore.PhaseResuming, statestore.PhaseMonitoring)
		d.bus.Publish(context.Background(), events.Event{
			Type:    events.EventResumeCompleted,
			Session: r.outcome.SessionPath(),
			Payload: map[string]any{"outcome": "success", "action": r.outcome.Action()},
		})
		d.currentPath = r.outcome.SessionPath()

	case strategy.OutcomeDelayed:
		d.store.Mutate(func(s *statestore.State) {
			s.Phase = statestore.PhaseWaiting
		})
		d.scheduleWait(r.outcome.NextAttempt(), r)

	case strategy.OutcomeFailure:
		d.caps.IncrementCounter("failed_resumes", 1)
		d.store.Mutate(func(s *statestore.State) {
			s.Phase = statestore.PhaseMonitoring
		})
		d.broadcastStateChange(statestore.PhaseResuming, statestore.PhaseMonitoring)
		d.bus.Publish(context.Background(), events.Event{
			Type:    events.EventResumeCompleted,
			Session: r.ctx.SessionPath,
			Payload: map[string]any{"outcome": "failure", "message": r.outcome.Message()},
		})
		d.log.Error().Str("session", r.ctx.SessionPath).Str("message", r.outcome.Message()).Msg("resume failed, giving up")
		if !r.outcome.Retryable() {
			d.saveCrashSnapshot(r)
		}

	case strategy.OutcomeCancelled:
		// Shutdown already drove the transition to Stopping.
	}
}

// saveCrashSnapshot writes a crash-style artifact for a resume that
// exhausted its retries: the session's tail text, every attempt made
// since its last stop, and its audit trail, so a human investigating
// later doesn't have to reconstruct the attempt sequence from
// audit.jsonl by hand.
func (d *Daemon) saveCrashSnapshot(r result) {
	if d.backupDir == "" {
		return
	}

	attempts := make([]crashsnapshot.Attempt, len(d.resumeHistory))
	for i, ctx := range d.resumeHistory {
		attempts[i] = crashsnapshot.Attempt{
			AttemptNumber:    ctx.AttemptNumber,
			StopReason:       string(ctx.StopReason),
			RetryAfter:       ctx.RetryAfter.String(),
			RetryAfterSource: string(ctx.RetryAfterSource),
			ClassifiedAt:     ctx.ClassifiedAt,
		}
	}

	var auditPath string
	if d.audit != nil {
		auditPath = d.audit.Path()
	}

	path, err := crashsnapshot.Save(
		d.backupDir,
		r.ctx.SessionPath,
		d.sessionCache[r.ctx.SessionPath].TailText,
		string(r.reason),
		r.outcome.Message(),
		attempts,
		auditPath,
	)
	if err != nil {
		d.log.Error().Err(err).Str("session", r.ctx.SessionPath).Msg("failed to write crash snapshot")
		return
	}
	d.log.Info().Str("session", r.ctx.SessionPath).Str("path", path).Msg("wrote crash snapshot")
}

func (d *Daemon) scheduleWait(delay time.Duration, pending result) {
	if d.waitTimer != nil {
		d.waitTimer.Stop()
	}
	if delay < 0 {
		delay = 0
	}
	d.waitTimer = time.NewTimer(delay)
	d.waitFireCh = d.waitTimer.C
	d.pendingResume = &pendingResume{
		path:   pending.ctx.SessionPath,
		reason: pending.reason,
		strat:  d.dispatch.Dispatch(pending.reason),
	}
}

type pendingResume struct {
	path   string
	reason classifier.Reason
	strat  strategy.Strategy
}

func (d *Daemon) fireWait() {
	d.waitFireCh = nil
	d.waitTimer = nil

	pending := d.pendingResume
	d.pendingResume = nil
	if pending == nil || pending.strat == nil {
		return
	}

	d.attempt++
	d.store.Mutate(func(s *statestore.State) {
		s.Phase = statestore.PhaseResuming
	})

	d.runStrategy(pending.strat, strategy.ResumeContext{
		SessionPath:   pending.path,
		StopReason:    pending.reason,
		Frontmatter:   frontmatterToMap(d.sessionCache[pending.path].Frontmatter),
		AttemptNumber: d.attempt,
		ClassifiedAt:  time.Now().UTC(),
	}, pending.reason)
}

func (d *Daemon) handleSubordinateEvent(ev subordinate.Event) {
	var topic string
	switch ev.State {
	case subordinate.Running:
		topic = events.EventSubordinateStarted
	case subordinate.NotRunning, subordinate.Restarting:
		topic = events.EventSubordinateStopped
	default:
		return
	}
	if ev.ExitKind == subordinate.ExitCrash {
		topic = events.EventSubordinateHealthFailed
	}
	d.bus.Publish(context.Background(), events.Event{
		Type: topic,
		Payload: map[string]any{
			"exit_kind": string(ev.ExitKind),
			"exit_code": ev.ExitCode,
			"attempt":   ev.Attempt,
		},
	})
}

func frontmatterToMap(fm sessionparser.Frontmatter) map[string]string {
	out := make(map[string]string, len(fm.Extra)+1)
	for k, v := range fm.Extra {
		out[k] = v
	}
	if fm.Status != "" {
		out["status"] = fm.Status
	}
	if len(fm.CompletedSteps) > 0 {
		strs := make([]string, len(fm.CompletedSteps))
		for i, s := range fm.CompletedSteps {
			strs[i] = itoa(s)
		}
		out["completed_steps"] = strings.Join(strs, ",")
	}
	return out
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
