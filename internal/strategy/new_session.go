// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package strategy

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wingedpig/palingenesis/internal/audit"
)

// SessionNotFound is returned when the directory containing the
// stopped session no longer exists.
type SessionNotFound struct {
	Dir string
}

func (e *SessionNotFound) Error() string { return "session directory not found: " + e.Dir }

// CommandFailed is returned when the subordinate's "start new session"
// invocation fails.
type CommandFailed struct {
	Stderr string
}

func (e *CommandFailed) Error() string { return "command failed: " + e.Stderr }

// NewSessionConfig tunes the NewSession strategy.
type NewSessionConfig struct {
	EnableBackup   bool // default true
	BackupDir      string
	NextStepFile   string // default "Next-step.md"
	PromptTemplate string // must contain {step} and {description}
}

func (c NewSessionConfig) withDefaults() NewSessionConfig {
	if c.NextStepFile == "" {
		c.NextStepFile = "Next-step.md"
	}
	if c.PromptTemplate == "" {
		c.PromptTemplate = "Step {step}: {description}"
	}
	return c
}

// NewSession starts a fresh session from a seed prompt derived from
// either a Next-step.md file or the stopped session's frontmatter.
// Used for ContextExhausted: the old session's context is spent, so
// continuing in place can't work.
type NewSession struct {
	Config NewSessionConfig
}

func NewNewSession(cfg NewSessionConfig) *NewSession {
	return &NewSession{Config: cfg.withDefaults()}
}

func (s *NewSession) Name() string { return "new_session" }

var stepPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^#?\s*step\s+(\d+)`),
	regexp.MustCompile(`^(\d+)\.`),
}

func (s *NewSession) Execute(ctx ResumeContext, caps Capabilities, sub Subordinate, cancel <-chan struct{}) Outcome {
	dir := filepath.Dir(ctx.SessionPath)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return Failure(false, (&SessionNotFound{Dir: dir}).Error())
	}

	var backupPath string
	if s.Config.EnableBackup {
		// Backup failure is a warning, not fatal: proceed without it.
		if p, err := s.backup(ctx.SessionPath); err == nil {
			backupPath = p
		}
	}

	step, description, prompted := s.seedPrompt(dir, ctx)
	prompt := strings.NewReplacer(
		"{step}", strconv.Itoa(step),
		"{description}", description,
	).Replace(s.Config.PromptTemplate)

	newPath, err := sub.StartNewSession(dir, prompt)
	if err != nil {
		return Failure(false, (&CommandFailed{Stderr: err.Error()}).Error())
	}

	caps.IncrementCounter("session_created", 1)
	_ = caps.Persist()

	metadata := map[string]any{"prompted": prompted}
	if backupPath != "" {
		metadata["backup_path"] = backupPath
	}
	caps.WriteAudit(audit.Entry{
		EventType:        audit.EventSessionCreated,
		SessionPath:      newPath,
		StopReason:       string(ctx.StopReason),
		RetryAfterSource: string(ctx.RetryAfterSource),
		ActionTaken:      s.Name(),
		Outcome:          audit.OutcomeSuccess,
		Metadata:         metadata,
	})
	caps.Broadcast("session.created", newPath)

	return Success(newPath, "started new session")
}

func (s *NewSession) ShouldRetry(o Outcome) bool { return false }

// backup copies sessionPath to a timestamped file under the
// configured backup directory.
func (s *NewSession) backup(sessionPath string) (string, error) {
	if s.Config.BackupDir == "" {
		return "", fmt.Errorf("no backup directory configured")
	}
	if err := os.MkdirAll(s.Config.BackupDir, 0o700); err != nil {
		return "", err
	}

	data, err := os.ReadFile(sessionPath)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%d%s",
		strings.TrimSuffix(filepath.Base(sessionPath), filepath.Ext(sessionPath)),
		time.Now().UnixNano(),
		filepath.Ext(sessionPath),
	)
	dst := filepath.Join(s.Config.BackupDir, name)
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return "", err
	}
	return dst, nil
}

// seedPrompt determines the step number and description for the new
// session's opening prompt, in priority order: Next-step.md, then
// frontmatter completed_steps, then a bare default.
func (s *NewSession) seedPrompt(dir string, ctx ResumeContext) (step int, description string, prompted bool) {
	nextStepPath := filepath.Join(dir, s.Config.NextStepFile)
	if data, err := os.ReadFile(nextStepPath); err == nil {
		step, description = parseNextStep(string(data))
		return step, description, true
	}

	if raw, ok := ctx.Frontmatter["completed_steps"]; ok && raw != "" {
		max := maxStepFromCSV(raw)
		return max + 1, fmt.Sprintf("Continue from step %d", max+1), false
	}

	return 1, "Continue workflow", false
}

func parseNextStep(content string) (int, string) {
	lines := strings.Split(content, "\n")
	step := 1
	headingDescription := ""
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		for _, re := range stepPatterns {
			m := re.FindStringSubmatchIndex(trimmed)
			if m == nil {
				continue
			}
			if n, err := strconv.Atoi(trimmed[m[2]:m[3]]); err == nil {
				step = n
			}
			// The heading itself may carry the description after the
			// step number, e.g. "# Step 5: implement auth" or
			// "5. implement auth" — take whatever follows any
			// ":"/"-"/"." separator on the same line.
			if rest := strings.TrimSpace(trimmed[m[1]:]); rest != "" {
				headingDescription = strings.TrimSpace(strings.TrimLeft(rest, ":-. "))
			}
		}
	}

	description := headingDescription
	if description == "" {
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			description = trimmed
			break
		}
	}
	if description == "" {
		description = "Continue workflow"
	}
	return step, description
}

func maxStepFromCSV(raw string) int {
	max := 0
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if n, err := strconv.Atoi(part); err == nil && n > max {
			max = n
		}
	}
	return max
}
