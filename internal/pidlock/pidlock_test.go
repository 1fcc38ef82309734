// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package pidlock

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "palingenesis.pid")

	lock, stale, err := Acquire(pidFile)
	require.NoError(t, err)
	require.False(t, stale)

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(data[:len(data)-1]))

	require.NoError(t, lock.Release())

	_, err = os.ReadFile(pidFile)
	require.True(t, os.IsNotExist(err))
}

func TestAcquireAlreadyRunning(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "palingenesis.pid")

	first, _, err := Acquire(pidFile)
	require.NoError(t, err)
	defer first.Release()

	_, _, err = Acquire(pidFile)
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestAcquireStalePidFileIsReplaced(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "palingenesis.pid")

	// A PID that is extremely unlikely to be running.
	require.NoError(t, os.WriteFile(pidFile, []byte("999999\n"), 0o644))

	lock, stale, err := Acquire(pidFile)
	require.NoError(t, err)
	require.True(t, stale)
	defer lock.Release()

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(data[:len(data)-1]))
}

func TestRunning(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "palingenesis.pid")

	_, running := Running(pidFile)
	require.False(t, running)

	lock, _, err := Acquire(pidFile)
	require.NoError(t, err)
	defer lock.Release()

	pid, running := Running(pidFile)
	require.True(t, running)
	require.Equal(t, os.Getpid(), pid)
}
