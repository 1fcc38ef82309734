// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package backoff

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	cases := []Config{
		{BaseDelay: 0, MaxDelay: time.Second, MaxRetries: 3},
		{BaseDelay: time.Second, MaxDelay: 500 * time.Millisecond, MaxRetries: 3},
		{BaseDelay: time.Second, MaxDelay: time.Second, MaxRetries: 0},
		{BaseDelay: time.Second, MaxDelay: time.Second, MaxRetries: 3, JitterFraction: 1.5},
	}
	for _, c := range cases {
		_, err := New(c)
		require.Error(t, err)
	}
}

func TestDelayForAttemptDoublesEachTime(t *testing.T) {
	e, err := New(Config{BaseDelay: time.Second, MaxDelay: time.Hour, MaxRetries: 10})
	require.NoError(t, err)

	require.Equal(t, time.Second, e.DelayForAttempt(1))
	require.Equal(t, 2*time.Second, e.DelayForAttempt(2))
	require.Equal(t, 4*time.Second, e.DelayForAttempt(3))
	require.Equal(t, 8*time.Second, e.DelayForAttempt(4))
}

func TestDelayForAttemptCapsAtMaxDelay(t *testing.T) {
	e, err := New(Config{BaseDelay: time.Second, MaxDelay: 5 * time.Second, MaxRetries: 50})
	require.NoError(t, err)

	require.Equal(t, 5*time.Second, e.DelayForAttempt(10))
	require.Equal(t, 5*time.Second, e.DelayForAttempt(1000))
}

func TestDelayForAttemptHandlesOverflow(t *testing.T) {
	e, err := New(Config{BaseDelay: time.Second, MaxDelay: time.Hour, MaxRetries: 1000})
	require.NoError(t, err)

	require.Equal(t, time.Hour, e.DelayForAttempt(1000))
}

func TestDelayForAttemptWithJitterStaysInBounds(t *testing.T) {
	e, err := New(Config{
		BaseDelay:      time.Second,
		MaxDelay:       time.Minute,
		MaxRetries:     10,
		JitterEnabled:  true,
		JitterFraction: 0.5,
	})
	require.NoError(t, err)

	base := time.Second // attempt 1, before jitter
	low := time.Duration(float64(base) * 0.5)
	high := time.Duration(float64(base) * 1.5)

	for i := 0; i < 100; i++ {
		d := e.DelayForAttempt(1)
		require.GreaterOrEqual(t, d, low)
		require.LessOrEqual(t, d, high)
	}
}

func TestCheckRetryLimit(t *testing.T) {
	e, err := New(Config{BaseDelay: time.Second, MaxDelay: time.Minute, MaxRetries: 3})
	require.NoError(t, err)

	require.NoError(t, e.CheckRetryLimit(1))
	require.NoError(t, e.CheckRetryLimit(3))

	err = e.CheckRetryLimit(4)
	require.Error(t, err)
	var mre *MaxRetriesExceeded
	require.True(t, errors.As(err, &mre))
	require.Equal(t, 3, mre.Max)
}

func TestEngineIsSafeForConcurrentUse(t *testing.T) {
	e, err := New(Config{
		BaseDelay:      time.Millisecond,
		MaxDelay:       time.Second,
		MaxRetries:     10,
		JitterEnabled:  true,
		JitterFraction: 0.3,
	})
	require.NoError(t, err)

	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(attempt int) {
			defer func() { done <- struct{}{} }()
			e.DelayForAttempt(attempt%5 + 1)
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}
}
