// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package subordinate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSupervisorRunsToCompletionWithoutRestart(t *testing.T) {
	s := New(Config{
		Command: []string{"sh", "-c", "exit 0"},
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := s.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, NotRunning, s.State())
}

func TestSupervisorRestartsOnCrashWhenAutoRestartEnabled(t *testing.T) {
	s := New(Config{
		Command:      []string{"sh", "-c", "exit 1"},
		AutoRestart:  true,
		RestartDelay: 5 * time.Millisecond,
	}, nil)

	// Engine is nil so MaxRetries enforcement is skipped; bound the test
	// with a context timeout instead and look for multiple Restarting
	// transitions.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go s.Run(ctx)

	seen := 0
	deadline := time.After(300 * time.Millisecond)
loop:
	for seen < 2 {
		select {
		case ev := <-s.Events():
			if ev.State == Restarting {
				seen++
			}
		case <-deadline:
			break loop
		}
	}
	require.GreaterOrEqual(t, seen, 2, "expected multiple restart attempts")
}

func TestSupervisorDoesNotRestartOnNormalExitByDefault(t *testing.T) {
	s := New(Config{
		Command:     []string{"sh", "-c", "exit 0"},
		AutoRestart: true,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := s.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, NotRunning, s.State())
}

func TestSupervisorAliveWithNoHealthURL(t *testing.T) {
	s := New(Config{Command: []string{"sh", "-c", "sleep 1"}}, nil)
	require.True(t, s.Alive(context.Background()))
}

func TestSupervisorStopIsNoopBeforeStart(t *testing.T) {
	s := New(Config{Command: []string{"sh", "-c", "sleep 1"}}, nil)
	require.NoError(t, s.Stop())
}
