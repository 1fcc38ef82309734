// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package crashsnapshot writes a diagnostic artifact when a resume
// strategy gives up with a non-retryable failure: the session's tail text,
// every attempt made against it, and its audit trail, all in one JSON
// file under {state_dir}/backups/. It mirrors the teacher's
// crashes.Manager.Save, trading that package's multi-service crash
// registry (List/Get/Newest, a serviceManager/worktreeManager pair)
// for a single-session snapshot written once per failed resume.
package crashsnapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wingedpig/palingenesis/internal/audit"
)

const snapshotVersion = "1.0"

// tailMaxLines bounds how much of the session tail the snapshot keeps;
// the classifier only ever needs the same handful of trailing lines,
// so there's no reason to embed an unbounded log in the artifact.
const tailMaxLines = 200

// Attempt records one resume attempt against the session, in the
// order they were tried.
type Attempt struct {
	AttemptNumber    int       `json:"attempt_number"`
	StopReason       string    `json:"stop_reason"`
	RetryAfter       string    `json:"retry_after,omitempty"`
	RetryAfterSource string    `json:"retry_after_source,omitempty"`
	ClassifiedAt     time.Time `json:"classified_at"`
}

// Snapshot is the JSON document written to <stem>-<ts>.crash.json.
type Snapshot struct {
	Version      string        `json:"version"`
	SessionPath  string        `json:"session_path"`
	Timestamp    time.Time     `json:"timestamp"`
	Reason       string        `json:"reason"`
	Message      string        `json:"message"`
	Tail         string        `json:"tail"`
	Attempts     []Attempt     `json:"attempts"`
	AuditEntries []audit.Entry `json:"audit_entries"`
}

// Save builds a Snapshot for sessionPath and writes it to backupDir
// as "<stem>-<ts>.crash.json", following the same
// stem-plus-timestamp naming the spec's Backup entity already uses.
// auditLogPath is read (not held open) to pull every entry recorded
// for this session; a read failure there doesn't prevent the
// snapshot from being written, it just omits AuditEntries.
func Save(backupDir, sessionPath, tailText, reason, message string, attempts []Attempt, auditLogPath string) (string, error) {
	if err := os.MkdirAll(backupDir, 0o700); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	snap := Snapshot{
		Version:     snapshotVersion,
		SessionPath: sessionPath,
		Timestamp:   time.Now().UTC(),
		Reason:      reason,
		Message:     message,
		Tail:        truncateTail(tailText, tailMaxLines),
		Attempts:    attempts,
	}
	if auditLogPath != "" {
		if entries, err := audit.Read(auditLogPath, audit.Filter{SessionPath: sessionPath}); err == nil {
			snap.AuditEntries = entries
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash snapshot: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(sessionPath), filepath.Ext(sessionPath))
	name := fmt.Sprintf("%s-%d.crash.json", stem, time.Now().UnixNano())
	dst := filepath.Join(backupDir, name)

	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return "", fmt.Errorf("write crash snapshot: %w", err)
	}
	return dst, nil
}

func truncateTail(text string, maxLines int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= maxLines {
		return text
	}
	return strings.Join(lines[len(lines)-maxLines:], "\n")
}
