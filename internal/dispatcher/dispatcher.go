// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package dispatcher implements the strategy dispatcher (C10): a pure
// mapping from a classified stop reason to a shared strategy handle.
// No I/O, clock, or RNG — just a lookup.
package dispatcher

import (
	"github.com/wingedpig/palingenesis/internal/classifier"
	"github.com/wingedpig/palingenesis/internal/strategy"
)

// Dispatcher holds shared handles to the strategy implementations and
// maps stop reasons onto them.
type Dispatcher struct {
	sameSession         strategy.Strategy
	newSession          strategy.Strategy
	unknownFallsThrough bool
}

// New builds a Dispatcher. unknownFallsThrough controls whether
// Unknown maps to the same-session strategy (true) or to no strategy
// at all (false, the default).
func New(sameSession, newSession strategy.Strategy, unknownFallsThrough bool) *Dispatcher {
	return &Dispatcher{
		sameSession:         sameSession,
		newSession:          newSession,
		unknownFallsThrough: unknownFallsThrough,
	}
}

// Dispatch returns the strategy for reason, or nil if the reason gets
// no automatic resume (UserExit, Completed, and Unknown unless
// configured to fall through).
func (d *Dispatcher) Dispatch(reason classifier.Reason) strategy.Strategy {
	switch reason {
	case classifier.RateLimit:
		return d.sameSession
	case classifier.ContextExhausted:
		return d.newSession
	case classifier.UserExit, classifier.Completed:
		return nil
	case classifier.Unknown:
		if d.unknownFallsThrough {
			return d.sameSession
		}
		return nil
	default:
		return nil
	}
}
