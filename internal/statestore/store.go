// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Store owns the single writer of state.json, guarded by its own
// read-write lock.
type Store struct {
	mu   sync.RWMutex
	path string
	log  zerolog.Logger
	cur  State
}

// Open loads state.json if present, falling back to Default() when
// the file is missing or its schema_version is unrecognized.
func Open(path string, log zerolog.Logger) (*Store, error) {
	s := &Store{path: path, log: log, cur: Default()}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("state file unparsable, starting fresh")
		return s, nil
	}

	if loaded.SchemaVersion != CurrentSchemaVersion {
		log.Warn().
			Int("found", loaded.SchemaVersion).
			Int("want", CurrentSchemaVersion).
			Msg("state schema version mismatch, starting fresh")
		return s, nil
	}

	s.cur = loaded
	return s, nil
}

// Get returns a copy of the current state.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Mutate applies fn to a copy of the current state under the write
// lock, persists the result atomically, and only then swaps it in —
// readers never observe a state that failed to persist.
func (s *Store) Mutate(fn func(*State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	fn(&next)
	next.SchemaVersion = CurrentSchemaVersion

	if err := s.persist(next); err != nil {
		return err
	}

	s.cur = next
	return nil
}

// persist writes state to a temp file in the same directory and
// renames it over the target, which is atomic on POSIX-equivalent
// filesystems.
func (s *Store) persist(state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Chmod(tmpPath, 0o600); err != nil {
		s.log.Warn().Err(err).Msg("could not set state file permissions")
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}

	return nil
}
