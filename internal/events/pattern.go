// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"errors"
	"strings"
)

// PatternMatcher handles event pattern matching.
type PatternMatcher struct{}

// NewPatternMatcher creates a new pattern matcher.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{}
}

// Match checks if an event type matches a pattern.
// Patterns support wildcards:
// - "service.*" matches "service.started", "service.crashed", etc.
// - "*.finished" matches "workflow.finished", "service.finished", etc.
// - "*" matches everything
func (pm *PatternMatcher) Match(eventType, pattern string) bool {
	if pattern == "" || eventType == "" {
		return false
	}

	// Match all
	if pattern == "*" {
		return true
	}

	// Exact match
	if pattern == eventType {
		return true
	}

	// Wildcard at end (service.*)
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		return strings.HasPrefix(eventType, prefix+".")
	}

	// Wildcard at start (*.finished)
	if strings.HasPrefix(pattern, "*.") {
		suffix := strings.TrimPrefix(pattern, "*.")
		return strings.HasSuffix(eventType, "."+suffix)
	}

	return false
}

// Compile pre-compiles a pattern for efficient matching. Beyond the
// plain type-glob syntax Match understands, a subscription pattern may
// scope itself to one session and/or one classifier reason, so a
// dashboard or webhook watching a single resume doesn't have to
// rediscover the type glob on every event:
//
//	session:<path>/<type-glob>        only events from that session
//	<type-glob>:<reason>              only events whose payload's
//	                                  "reason" (or "stop_reason")
//	                                  matches, e.g. "resume.*:rate_limit"
//	session:<path>/<type-glob>:<reason>   both scopes combined
//
// The clauses are parsed once here so MatchEvent never re-splits the
// pattern string per event.
func (pm *PatternMatcher) Compile(pattern string) (CompiledPattern, error) {
	if pattern == "" {
		return nil, errors.New("empty pattern")
	}

	rest := pattern
	cp := &compiledPattern{raw: pattern, matcher: pm}

	if after, ok := strings.CutPrefix(rest, "session:"); ok {
		// Session paths contain slashes themselves, so the type glob is
		// whatever follows the last one.
		i := strings.LastIndex(after, "/")
		if i <= 0 {
			return nil, errors.New("session-scoped pattern must be session:<path>/<type-glob>")
		}
		cp.session = after[:i]
		rest = after[i+1:]
	}

	if typeGlob, reason, found := strings.Cut(rest, ":"); found {
		if reason == "" {
			return nil, errors.New("reason-scoped pattern must be <type-glob>:<reason>")
		}
		cp.typeGlob = typeGlob
		cp.reason = reason
	} else {
		cp.typeGlob = rest
	}

	if cp.typeGlob == "" {
		return nil, errors.New("pattern has no type glob")
	}

	return cp, nil
}

// CompiledPattern is a pre-compiled pattern for efficient matching.
type CompiledPattern interface {
	// Match reports whether eventType alone satisfies the pattern's
	// type glob, ignoring any session/reason scope. Kept for callers
	// (and tests) that only ever deal in bare type globs.
	Match(eventType string) bool

	// MatchEvent reports whether event satisfies the full pattern,
	// including any session and reason scope the pattern carries.
	MatchEvent(event Event) bool
}

type compiledPattern struct {
	raw      string
	matcher  *PatternMatcher
	session  string // "" means unscoped
	typeGlob string
	reason   string // "" means unscoped
}

func (cp *compiledPattern) Match(eventType string) bool {
	return cp.matcher.Match(eventType, cp.typeGlob)
}

func (cp *compiledPattern) MatchEvent(event Event) bool {
	if !cp.matcher.Match(event.Type, cp.typeGlob) {
		return false
	}
	if cp.session != "" && event.Session != cp.session {
		return false
	}
	if cp.reason != "" && eventReason(event) != cp.reason {
		return false
	}
	return true
}

// eventReason pulls the classifier reason a resume event carries, if
// any. startResume/handleResult populate "reason" or "stop_reason"
// depending on which event is being published; checking both spares
// subscribers from having to know which key a given event type uses.
func eventReason(event Event) string {
	if v, ok := event.Payload["reason"].(string); ok && v != "" {
		return v
	}
	if v, ok := event.Payload["stop_reason"].(string); ok && v != "" {
		return v
	}
	return ""
}
