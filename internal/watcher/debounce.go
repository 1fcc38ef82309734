// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package watcher implements the debounced, recursive session-file
// watcher (C5): it wraps fsnotify, collapses bursts of events on the
// same path into one, filters by session-file pattern, and reports
// loss of the watched root as a fatal error on its event channel.
package watcher

import (
	"sync"
	"time"
)

const defaultDebounceDuration = 100 * time.Millisecond

// debouncer collapses repeated calls for the same key within a
// window into a single deferred invocation carrying the last call's
// arguments.
type debouncer struct {
	mu       sync.Mutex
	duration time.Duration
	timers   map[string]*time.Timer
}

func newDebouncer(duration time.Duration) *debouncer {
	if duration <= 0 {
		duration = defaultDebounceDuration
	}
	return &debouncer{
		duration: duration,
		timers:   make(map[string]*time.Timer),
	}
}

// debounce schedules fn to run after the debounce window. A call with
// the same key before the window elapses resets the timer and
// replaces fn, so only the last-observed state survives the collapse.
func (d *debouncer) debounce(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, exists := d.timers[key]; exists {
		timer.Stop()
	}

	d.timers[key] = time.AfterFunc(d.duration, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
}

// cancel drops a pending debounced call for key without running it.
func (d *debouncer) cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, exists := d.timers[key]; exists {
		timer.Stop()
		delete(d.timers, key)
	}
}

// stop cancels every pending debounced call. Used on shutdown so no
// debounced event fires after the watcher has been told to stop.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, timer := range d.timers {
		timer.Stop()
		delete(d.timers, key)
	}
}

func (d *debouncer) setDuration(duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if duration <= 0 {
		duration = defaultDebounceDuration
	}
	d.duration = duration
}
