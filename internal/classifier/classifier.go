// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package classifier implements the deterministic stop-reason
// classifier (C8): a pure function from tail text, exit code, and
// frontmatter to a classification. It never panics — any internal
// failure downgrades to Unknown with the error recorded as a note.
package classifier

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/wingedpig/palingenesis/internal/sessionparser"
)

// Reason is the classified stop reason, in priority order.
type Reason string

const (
	RateLimit        Reason = "rate_limit"
	Completed        Reason = "completed"
	ContextExhausted Reason = "context_exhausted"
	UserExit         Reason = "user_exit"
	Unknown          Reason = "unknown"
)

// Confidence buckets how certain a classification is.
type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
	Low    Confidence = "low"
)

// Result is the classifier's output.
type Result struct {
	Reason     Reason
	Confidence Confidence
	Evidence   string
	RetryAfter time.Duration      // only meaningful when Reason == RateLimit
	Source     RetryAfterSource   // only meaningful when Reason == RateLimit
	Note       string             // populated only on internal downgrade to Unknown
}

// RetryAfterSource records which extraction form produced RetryAfter.
type RetryAfterSource string

const (
	SourceHeader  RetryAfterSource = "Header"
	SourceBody    RetryAfterSource = "Body"
	SourceParsed  RetryAfterSource = "Parsed"
	SourceDefault RetryAfterSource = "Default"
)

// Config tunes thresholds the classifier checks against.
type Config struct {
	ContextExhaustedFraction float64       // default 0.80
	DefaultRetryAfter        time.Duration // used when RateLimit matches but no duration is found
	SIGINTReceived           bool          // subordinate received SIGINT this run
}

func (c Config) withDefaults() Config {
	if c.ContextExhaustedFraction <= 0 {
		c.ContextExhaustedFraction = 0.80
	}
	if c.DefaultRetryAfter <= 0 {
		c.DefaultRetryAfter = 60 * time.Second
	}
	return c
}

var (
	rateLimitPatterns = compileAll(
		`rate[-_ ]?limit`,
		`\b429\b`,
		`too many requests`,
		`quota exceeded`,
		`overloaded`,
		`throttl\w*`,
		`rate_limit_error`,
	)

	retryAfterHeader = regexp.MustCompile(`(?i)retry[-_ ]after[:\s]+(\d+)`)
	retryAfterJSON   = regexp.MustCompile(`(?i)"retry_after"\s*:\s*(\d+)`)
	retryAfterNatLng = regexp.MustCompile(`(?i)try again in (\d+)\s*(seconds?|secs?|s)\b`)

	// retryAfterForms pairs each extraction regexp with the source tag
	// it implies, tried in priority order: wire header form, JSON body
	// form, then natural-language parsed-from-prose form.
	retryAfterForms = []struct {
		re     *regexp.Regexp
		source RetryAfterSource
	}{
		{retryAfterHeader, SourceHeader},
		{retryAfterJSON, SourceBody},
		{retryAfterNatLng, SourceParsed},
	}

	contextExhaustedPatterns = compileAll(
		`context[-_ ]?length[-_ ]?exceeded`,
		`maximum context length`,
		`token[-_ ]?limit[-_ ]?exceeded`,
		`conversation too long`,
		`context[-_ ]?window (full|exceeded|limit)`,
		`max[-_ ]tokens reached`,
		`prompt is too long`,
	)
	usedOfTokens = regexp.MustCompile(`(?i)used (\d+) of (\d+) tokens`)

	userExitPatterns = compileAll(
		`\buser[-_ ]?(exit|cancelled|canceled|stopped)\b`,
		`\bexit requested\b`,
	)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(`(?i)` + p)
	}
	return compiled
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// Classify applies the rules in their fixed priority order: RateLimit,
// Completed, ContextExhausted, UserExit, then Unknown.
func Classify(tailText string, exitCode *int, fm *sessionparser.Frontmatter, cfg Config) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Reason: Unknown, Confidence: Low, Note: fmt.Sprintf("classifier panic: %v", r)}
		}
	}()

	cfg = cfg.withDefaults()

	if evidence := firstMatch(rateLimitPatterns, tailText); evidence != "" {
		wait, source := retryAfter(tailText, cfg.DefaultRetryAfter)
		return Result{
			Reason:     RateLimit,
			Confidence: High,
			Evidence:   evidence,
			RetryAfter: wait,
			Source:     source,
		}
	}

	if fm != nil && isCompleted(*fm) {
		return Result{Reason: Completed, Confidence: High, Evidence: completedEvidence(*fm)}
	}

	if evidence := firstMatch(contextExhaustedPatterns, tailText); evidence != "" {
		return Result{Reason: ContextExhausted, Confidence: High, Evidence: evidence}
	}
	if frac, evidence, ok := tokenFraction(tailText); ok && frac > cfg.ContextExhaustedFraction {
		return Result{Reason: ContextExhausted, Confidence: Medium, Evidence: evidence}
	}

	if cfg.SIGINTReceived {
		return Result{Reason: UserExit, Confidence: High, Evidence: "SIGINT"}
	}
	const sigintExitCode = 130 // 128 + SIGINT, standard shell convention
	if exitCode != nil && *exitCode == sigintExitCode {
		return Result{Reason: UserExit, Confidence: High, Evidence: "exit code 130 (SIGINT)"}
	}
	if evidence := firstMatch(userExitPatterns, tailText); evidence != "" {
		return Result{Reason: UserExit, Confidence: Medium, Evidence: evidence}
	}

	return Result{Reason: Unknown, Confidence: Low}
}

func isCompleted(fm sessionparser.Frontmatter) bool {
	s := sessionparser.Session{Frontmatter: fm}
	return s.IsComplete()
}

func completedEvidence(fm sessionparser.Frontmatter) string {
	if fm.Status == "complete" {
		return "status=complete"
	}
	return "completed_steps covers [1.." + strconv.Itoa(fm.TotalSteps) + "]"
}

func tokenFraction(text string) (fraction float64, evidence string, ok bool) {
	m := usedOfTokens.FindStringSubmatch(text)
	if m == nil {
		return 0, "", false
	}
	used, err1 := strconv.ParseFloat(m[1], 64)
	total, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil || total == 0 {
		return 0, "", false
	}
	return used / total, m[0], true
}

func retryAfter(text string, fallback time.Duration) (time.Duration, RetryAfterSource) {
	for _, form := range retryAfterForms {
		if m := form.re.FindStringSubmatch(text); m != nil {
			if secs, err := strconv.Atoi(m[1]); err == nil {
				return time.Duration(secs) * time.Second, form.source
			}
		}
	}
	return fallback, SourceDefault
}
