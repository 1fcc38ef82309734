// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitForEvent(t *testing.T, events <-chan Event, timeout time.Duration) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestWatcherCollapsesCreateAndWriteIntoCreated(t *testing.T) {
	dir := t.TempDir()

	w, err := New([]string{dir}, PatternMatcher([]string{"*.md"}), 10*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	target := filepath.Join(dir, "session.md")
	require.NoError(t, os.WriteFile(target, []byte("hello"), 0o644))

	ev := waitForEvent(t, w.Events(), 2*time.Second)
	require.Equal(t, target, ev.Path)
	require.Equal(t, Created, ev.Kind)
}

func TestWatcherIgnoresNonMatchingPattern(t *testing.T) {
	dir := t.TempDir()

	w, err := New([]string{dir}, PatternMatcher([]string{"*.md"}), 10*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event for non-matching path: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherCollapsesBurstIntoOneEvent(t *testing.T) {
	dir := t.TempDir()

	w, err := New([]string{dir}, nil, 150*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	target := filepath.Join(dir, "session.md")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0o644))
	require.NoError(t, os.WriteFile(target, []byte("v2"), 0o644))
	require.NoError(t, os.WriteFile(target, []byte("v3"), 0o644))

	ev := waitForEvent(t, w.Events(), 2*time.Second)
	require.Equal(t, target, ev.Path)

	select {
	case extra := <-w.Events():
		t.Fatalf("expected burst to collapse into one event, got extra: %+v", extra)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherReportsRemoval(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "session.md")
	require.NoError(t, os.WriteFile(target, []byte("hi"), 0o644))

	w, err := New([]string{dir}, nil, 10*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.Remove(target))

	ev := waitForEvent(t, w.Events(), 2*time.Second)
	require.Equal(t, target, ev.Path)
	require.Equal(t, Removed, ev.Kind)
}

func TestWatcherReportsFatalOnRootLoss(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "sessions")
	require.NoError(t, os.Mkdir(root, 0o755))

	w, err := New([]string{root}, nil, 10*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.RemoveAll(root))

	select {
	case err := <-w.Errors():
		require.True(t, errors.Is(err, ErrRootLost))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fatal root-loss error")
	}
}

func TestWatcherWatchesNewSubdirectories(t *testing.T) {
	dir := t.TempDir()

	w, err := New([]string{dir}, nil, 10*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// Give the watcher goroutine a moment to pick up the new directory
	// and add it to fsnotify before a file appears inside it.
	time.Sleep(100 * time.Millisecond)

	target := filepath.Join(sub, "session.md")
	require.NoError(t, os.WriteFile(target, []byte("hi"), 0o644))

	ev := waitForEvent(t, w.Events(), 2*time.Second)
	require.Equal(t, target, ev.Path)
}

func TestPatternMatcherAcceptsAllWhenEmpty(t *testing.T) {
	m := PatternMatcher(nil)
	require.True(t, m("/anything/at/all.bin"))
}

func TestPatternMatcherMatchesBaseName(t *testing.T) {
	m := PatternMatcher([]string{"*.md", "*.txt"})
	require.True(t, m("/a/b/notes.md"))
	require.True(t, m("/a/b/notes.txt"))
	require.False(t, m("/a/b/notes.bin"))
}
