// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sessionparser extracts frontmatter and tail text from a
// session file (C6). It never panics on malformed input: a frontmatter
// block that fails to parse yields empty fields rather than an error.
package sessionparser

import "time"

// ErrorKind classifies a parse failure. Only NotFound and Io are ever
// returned — anything else (malformed frontmatter, bad encoding) is
// absorbed into a degraded-but-successful Session.
type ErrorKind int

const (
	Io ErrorKind = iota
	NotFound
)

// Error is the only error type Parse returns.
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case NotFound:
		return "session file not found: " + e.Path
	default:
		return "session file io error: " + e.Path + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Frontmatter holds the parsed leading `---`-delimited block. Unknown
// keys are preserved untyped in Extra so callers that need a field the
// daemon doesn't model by name can still reach it.
type Frontmatter struct {
	Status         string
	Model          string
	TotalSteps     int
	CompletedSteps []int
	Extra          map[string]string
}

// Session is the result of parsing one session file.
type Session struct {
	Path         string
	Frontmatter  Frontmatter
	TailText     string
	LastModified time.Time
}

// IsComplete reports whether the session's frontmatter marks it done:
// status == "complete", or CompletedSteps covers [1..TotalSteps].
func (s Session) IsComplete() bool {
	if s.Frontmatter.Status == "complete" {
		return true
	}
	if s.Frontmatter.TotalSteps <= 0 {
		return false
	}
	seen := make(map[int]bool, len(s.Frontmatter.CompletedSteps))
	for _, n := range s.Frontmatter.CompletedSteps {
		seen[n] = true
	}
	for i := 1; i <= s.Frontmatter.TotalSteps; i++ {
		if !seen[i] {
			return false
		}
	}
	return true
}
