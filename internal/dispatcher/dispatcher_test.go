// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wingedpig/palingenesis/internal/classifier"
	"github.com/wingedpig/palingenesis/internal/strategy"
)

type stubStrategy struct{ name string }

func (s stubStrategy) Name() string { return s.name }
func (s stubStrategy) Execute(strategy.ResumeContext, strategy.Capabilities, strategy.Subordinate, <-chan struct{}) strategy.Outcome {
	return strategy.Success("", "")
}
func (s stubStrategy) ShouldRetry(strategy.Outcome) bool { return false }

func TestDispatchMapsKnownReasons(t *testing.T) {
	same := stubStrategy{name: "same_session"}
	fresh := stubStrategy{name: "new_session"}
	d := New(same, fresh, false)

	require.Equal(t, "same_session", d.Dispatch(classifier.RateLimit).Name())
	require.Equal(t, "new_session", d.Dispatch(classifier.ContextExhausted).Name())
	require.Nil(t, d.Dispatch(classifier.UserExit))
	require.Nil(t, d.Dispatch(classifier.Completed))
	require.Nil(t, d.Dispatch(classifier.Unknown))
}

func TestDispatchUnknownFallsThroughWhenConfigured(t *testing.T) {
	same := stubStrategy{name: "same_session"}
	fresh := stubStrategy{name: "new_session"}
	d := New(same, fresh, true)

	require.Equal(t, "same_session", d.Dispatch(classifier.Unknown).Name())
}
