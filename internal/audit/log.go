// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxSizeBytes = 10 * 1024 * 1024
	defaultMaxFiles     = 5
)

// Config controls rotation thresholds.
type Config struct {
	MaxSizeBytes int64
	MaxFiles     int
}

// Log is the single-writer append-only audit log.
type Log struct {
	mu       sync.Mutex
	path     string
	cfg      Config
	file     *os.File
}

// Open opens (creating if necessary) the active audit file in append
// mode with 0600 permissions.
func Open(path string, cfg Config) (*Log, error) {
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = defaultMaxSizeBytes
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = defaultMaxFiles
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	return &Log{path: path, cfg: cfg, file: f}, nil
}

// Path returns the active audit file's path, for callers (crash
// snapshots, `audit tail`-style tooling) that need to Read it back.
func (l *Log) Path() string {
	return l.path
}

// Write appends one entry as a newline-terminated JSON line, rotating
// first if the active file has reached MaxSizeBytes. Each write is
// fsynced — the daemon can afford it given event rates.
func (l *Log) Write(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	if err := l.rotateIfNeeded(); err != nil {
		return fmt.Errorf("rotate audit log: %w", err)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}

	return l.file.Sync()
}

func (l *Log) rotateIfNeeded() error {
	info, err := l.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < l.cfg.MaxSizeBytes {
		return nil
	}

	if err := l.file.Close(); err != nil {
		return err
	}

	// Shift audit.jsonl.(N-1) -> audit.jsonl.N, down to 1.
	for n := l.cfg.MaxFiles; n >= 1; n-- {
		src := l.rotatedPath(n - 1)
		dst := l.rotatedPath(n)
		if n == l.cfg.MaxFiles {
			os.Remove(dst) // drop anything beyond the retention window
		}
		if _, err := os.Stat(src); err == nil {
			if err := os.Rename(src, dst); err != nil {
				return err
			}
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// rotatedPath returns l.path for n==0, else l.path+".N".
func (l *Log) rotatedPath(n int) string {
	if n == 0 {
		return l.path
	}
	return fmt.Sprintf("%s.%d", l.path, n)
}

// Close closes the active file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Filter narrows Read results.
type Filter struct {
	Since       time.Time
	Until       time.Time
	EventTypes  map[EventType]bool
	SessionPath string
}

// Read performs a linear scan over the active file and every rotated
// file beside it, returning entries matching filter. No indexing is
// maintained; daemons run long enough that a scan per request is fine.
func Read(path string, filter Filter) ([]Entry, error) {
	var entries []Entry

	paths := []string{path}
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if des, err := os.ReadDir(dir); err == nil {
		var rotated []string
		for _, de := range des {
			if strings.HasPrefix(de.Name(), base+".") {
				rotated = append(rotated, filepath.Join(dir, de.Name()))
			}
		}
		sort.Strings(rotated)
		paths = append(paths, rotated...)
	}

	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("open %s: %w", p, err)
		}

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var e Entry
			if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
				continue // skip unparsable lines rather than fail the whole read
			}
			if matches(e, filter) {
				entries = append(entries, e)
			}
		}
		f.Close()
	}

	return entries, nil
}

func matches(e Entry, f Filter) bool {
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	if len(f.EventTypes) > 0 && !f.EventTypes[e.EventType] {
		return false
	}
	if f.SessionPath != "" && e.SessionPath != f.SessionPath {
		return false
	}
	return true
}
