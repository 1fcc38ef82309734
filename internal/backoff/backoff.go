// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package backoff implements the capped exponential backoff engine
// with jitter (C9) used by the resume strategies between retry
// attempts.
package backoff

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Config describes one backoff policy. It is validated once, at
// construction.
type Config struct {
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxRetries     int
	JitterEnabled  bool
	JitterFraction float64 // in [0,1]
}

func (c Config) validate() error {
	if c.BaseDelay <= 0 {
		return fmt.Errorf("backoff: base_delay must be > 0, got %s", c.BaseDelay)
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("backoff: max_delay (%s) must be >= base_delay (%s)", c.MaxDelay, c.BaseDelay)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("backoff: max_retries must be > 0, got %d", c.MaxRetries)
	}
	if c.JitterFraction < 0 || c.JitterFraction > 1 {
		return fmt.Errorf("backoff: jitter_fraction must be in [0,1], got %f", c.JitterFraction)
	}
	return nil
}

// MaxRetriesExceeded is returned by CheckRetryLimit once the attempt
// count exceeds the configured maximum.
type MaxRetriesExceeded struct {
	Max int
}

func (e *MaxRetriesExceeded) Error() string {
	return fmt.Sprintf("max retries exceeded: %d", e.Max)
}

// Engine computes retry delays for a validated Config.
type Engine struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// New validates cfg and returns an Engine, or an error describing the
// first invalid field.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}, nil
}

// DelayForAttempt returns min(base_delay * 2^(n-1), max_delay), with
// exponent overflow saturating at max_delay, then applies
// multiplicative jitter in [1-fraction, 1+fraction] if enabled. n is
// 1-indexed.
func (e *Engine) DelayForAttempt(n int) time.Duration {
	if n < 1 {
		n = 1
	}

	base := e.cfg.BaseDelay
	max := e.cfg.MaxDelay

	// Guard against overflow: 2^(n-1) can exceed what time.Duration or
	// float64 can represent for large n.
	exp := n - 1
	var delay time.Duration
	if exp >= 63 {
		delay = max
	} else {
		multiplier := math.Ldexp(1, exp) // 2^exp
		scaled := float64(base) * multiplier
		if scaled <= 0 || scaled > float64(max) {
			delay = max
		} else {
			delay = time.Duration(scaled)
		}
	}
	if delay > max {
		delay = max
	}

	if !e.cfg.JitterEnabled || e.cfg.JitterFraction == 0 {
		return delay
	}

	e.mu.Lock()
	factor := 1 - e.cfg.JitterFraction + e.rng.Float64()*2*e.cfg.JitterFraction
	e.mu.Unlock()

	jittered := time.Duration(float64(delay) * factor)
	if jittered < 0 {
		jittered = 0
	}
	return jittered
}

// CheckRetryLimit fails with *MaxRetriesExceeded once n exceeds
// max_retries.
func (e *Engine) CheckRetryLimit(n int) error {
	if n > e.cfg.MaxRetries {
		return &MaxRetriesExceeded{Max: e.cfg.MaxRetries}
	}
	return nil
}

// MaxRetries returns the configured retry ceiling.
func (e *Engine) MaxRetries() int { return e.cfg.MaxRetries }
