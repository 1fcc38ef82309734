// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package strategy implements the resume strategies (C11 same-session,
// C12 new-session) dispatched by internal/dispatcher. Strategies are
// stateless: everything they need arrives in a ResumeContext plus a
// narrow Capabilities handle, never the full daemon core.
package strategy

import (
	"time"

	"github.com/wingedpig/palingenesis/internal/audit"
	"github.com/wingedpig/palingenesis/internal/classifier"
)

// ResumeContext is the immutable (aside from AttemptNumber) packet the
// dispatcher hands to a strategy.
type ResumeContext struct {
	SessionPath   string
	StopReason    classifier.Reason
	RetryAfter    time.Duration // zero means "not specified"
	RetryAfterSource classifier.RetryAfterSource // only meaningful when RetryAfter is from a RateLimit classification
	Frontmatter   map[string]string
	AttemptNumber int // 1-indexed
	ClassifiedAt  time.Time
}

// OutcomeKind discriminates the variants of Outcome.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeDelayed   OutcomeKind = "delayed"
	OutcomeFailure   OutcomeKind = "failure"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome is the result of one strategy execution. Construct with the
// Success/Delayed/Failure/Cancelled helpers below; fields not
// meaningful for a given Kind are left zero.
type Outcome struct {
	kind        OutcomeKind
	sessionPath string
	action      string
	nextAttempt time.Duration
	reason      string
	retryable   bool
	message     string
}

func Success(sessionPath, action string) Outcome {
	return Outcome{kind: OutcomeSuccess, sessionPath: sessionPath, action: action}
}

func Delayed(nextAttempt time.Duration, reason string) Outcome {
	return Outcome{kind: OutcomeDelayed, nextAttempt: nextAttempt, reason: reason}
}

func Failure(retryable bool, message string) Outcome {
	return Outcome{kind: OutcomeFailure, retryable: retryable, message: message}
}

func Cancelled() Outcome {
	return Outcome{kind: OutcomeCancelled}
}

func (o Outcome) Kind() OutcomeKind          { return o.kind }
func (o Outcome) SessionPath() string        { return o.sessionPath }
func (o Outcome) Action() string             { return o.action }
func (o Outcome) NextAttempt() time.Duration { return o.nextAttempt }
func (o Outcome) Reason() string             { return o.reason }
func (o Outcome) Retryable() bool            { return o.retryable }
func (o Outcome) Message() string            { return o.message }

// Capabilities is the narrow interface strategies get instead of the
// full daemon core: increment counters, persist state, write an audit
// entry, broadcast an event. Breaks the cyclic dependency between the
// daemon core and the strategies it dispatches to.
type Capabilities interface {
	IncrementCounter(name string, delta uint64)
	AddTimeSaved(seconds float64)
	Persist() error
	WriteAudit(entry audit.Entry) error
	Broadcast(topic string, payload any)
}

// Subordinate is the narrow capability to interact with the managed
// assistant process; strategies never see the full subordinate
// supervisor.
type Subordinate interface {
	// ContinueSession resumes the current session in place. Returns an
	// error for non-zero exit or transport failure.
	ContinueSession(sessionPath string) error

	// StartNewSession starts a fresh session with prompt inside dir,
	// returning the path to the newly created session file.
	StartNewSession(dir, prompt string) (newSessionPath string, err error)
}

// Strategy is the closed variant set the dispatcher maps stop reasons
// to: Execute runs one attempt; Name identifies the strategy for
// logs/audit; ShouldRetry decides whether the dispatcher should loop.
type Strategy interface {
	Name() string
	Execute(ctx ResumeContext, caps Capabilities, sub Subordinate, cancel <-chan struct{}) Outcome
	ShouldRetry(o Outcome) bool
}
