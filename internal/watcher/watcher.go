// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Kind is the observable session-file change kind.
type Kind string

const (
	Created  Kind = "created"
	Modified Kind = "modified"
	Removed  Kind = "removed"
)

// Event is one debounced, filtered session-file change.
type Event struct {
	Path string
	Kind Kind
	At   time.Time
}

// Matcher decides whether a path is a session file worth reporting.
type Matcher func(path string) bool

// ErrRootLost marks a fatal error delivered on Errors(): a watched
// root directory itself was removed or renamed away. The daemon core
// must treat this as unrecoverable and restart the watcher against a
// freshly resolved root. Test with errors.Is.
var ErrRootLost = fmt.Errorf("watched root lost")

// Watcher recursively watches one or more root directories and emits
// debounced Events for paths that Matcher accepts. Loss of a watched
// root (e.g. it was deleted) is reported as a fatal error on Errors()
// so the daemon core can restart the watcher.
type Watcher struct {
	roots   []string
	matcher Matcher
	fsw     *fsnotify.Watcher
	deb     *debouncer

	events chan Event
	errs   chan error

	mu       sync.Mutex
	lastKind map[string]Kind
	closed   bool
	closeCh  chan struct{}
	wg       sync.WaitGroup

	rootSet map[string]bool
}

// New creates a Watcher over roots, filtering paths through matcher
// and collapsing bursts within debounce (0 selects the default of
// 100ms per the spec).
func New(roots []string, matcher Matcher, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	rootSet := make(map[string]bool, len(roots))
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			abs = root
		}
		rootSet[abs] = true
	}

	w := &Watcher{
		roots:    roots,
		matcher:  matcher,
		fsw:      fsw,
		deb:      newDebouncer(debounce),
		events:   make(chan Event, 64),
		errs:     make(chan error, 4),
		lastKind: make(map[string]Kind),
		closeCh:  make(chan struct{}),
		rootSet:  rootSet,
	}

	for _, root := range roots {
		if err := w.addRecursive(root); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", root, err)
		}
	}

	w.wg.Add(1)
	go w.run()

	return w, nil
}

// Events returns the channel of debounced session-file changes.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the channel of watcher errors: loss of a watched root
// (wrapping ErrRootLost, fatal) and, on a best-effort basis, transient
// fsnotify errors after which watching continues.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Close stops the watcher, dropping any outstanding debounced events.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.deb.stop()
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Transient I/O errors are logged by the caller via a
			// best-effort non-blocking send; watching continues.
			select {
			case w.errs <- fmt.Errorf("transient watch error: %w", err):
			default:
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) && w.isRoot(ev.Name) {
		select {
		case w.errs <- fmt.Errorf("watched root %s was removed: %w", ev.Name, ErrRootLost):
		default:
		}
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// A new directory appeared under a watched root: watch it
			// too so files created inside it are observed.
			w.fsw.Add(ev.Name)
			return
		}
		w.dispatch(ev.Name, Created)

	case ev.Has(fsnotify.Write):
		w.dispatch(ev.Name, Modified)

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.dispatch(ev.Name, Removed)
	}
}

func (w *Watcher) dispatch(path string, kind Kind) {
	if w.matcher != nil && !w.matcher(path) {
		return
	}

	w.mu.Lock()
	// A removal always fires immediately and clears any in-flight
	// debounce for that path — there's nothing left to collapse.
	if kind == Removed {
		w.deb.cancel(path)
		delete(w.lastKind, path)
		w.mu.Unlock()
		w.emit(path, Removed)
		return
	}

	// Collapse a burst into one event: a Created followed by Modified
	// within the window still resolves to a single Created event, while
	// a burst of plain modifications resolves to Modified. The event is
	// timestamped when the debounce window fires.
	prev, hasPrev := w.lastKind[path]
	effective := kind
	if hasPrev && prev == Created {
		effective = Created
	}
	w.lastKind[path] = effective
	w.mu.Unlock()

	w.deb.debounce(path, func() {
		w.mu.Lock()
		k := w.lastKind[path]
		delete(w.lastKind, path)
		w.mu.Unlock()
		w.emit(path, k)
	})
}

func (w *Watcher) isRoot(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return w.rootSet[abs]
}

func (w *Watcher) emit(path string, kind Kind) {
	select {
	case w.events <- Event{Path: path, Kind: kind, At: time.Now()}:
	case <-w.closeCh:
	}
}
