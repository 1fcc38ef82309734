// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import "sync"

// nonReloadableFields names the dotted config keys that take effect only
// on next startup. Holder.Reload swaps in every field regardless; a
// reloaded value takes effect only where its consumer reads the holder
// at use time rather than a copy taken at startup.
var nonReloadableFields = map[string]bool{
	"daemon.pid_file":  true,
	"daemon.http_port": true,
	"daemon.http_bind": true,
	"otel.endpoint":    true,
}

// NonReloadable reports whether a dotted field path only takes effect
// after a restart.
func NonReloadable(field string) bool {
	return nonReloadableFields[field]
}

// Holder guards the live config behind a read-write lock, swapping the
// pointer only after validation succeeds — readers never observe a
// torn config.
type Holder struct {
	mu  sync.RWMutex
	cur *Config
}

// NewHolder wraps an already-validated config.
func NewHolder(cfg *Config) *Holder {
	return &Holder{cur: cfg}
}

// Get returns the current config.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cur
}

// Reload validates next and, if it passes, swaps it in. On validation
// failure the old config is kept and the error is returned.
func (h *Holder) Reload(next *Config) error {
	if err := (&Validator{}).Validate(next); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.cur = next
	return nil
}
