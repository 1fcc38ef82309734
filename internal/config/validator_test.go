// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAccumulatesMultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Daemon.LogLevel = "verbose"
	cfg.Resume.BaseDelaySecs = 0
	cfg.Resume.MaxRetries = 0

	err := NewValidator().Validate(cfg)
	require.Error(t, err)

	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(ve.Errors), 3)
}

func TestValidateHTTPPortBounds(t *testing.T) {
	cfg := Default()
	cfg.Daemon.HTTPEnabled = true
	cfg.Daemon.HTTPPort = 70000

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon.http_port")
}

func TestValidateSubordinateSkippedWhenDisabled(t *testing.T) {
	cfg := Default()
	cfg.Subordinate.Enabled = false
	cfg.Subordinate.ServePort = -1

	require.NoError(t, NewValidator().Validate(cfg))
}

func TestValidateSubordinateBoundsWhenEnabled(t *testing.T) {
	cfg := Default()
	cfg.Subordinate.Enabled = true
	cfg.Subordinate.ServePort = 0

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subordinate.serve_port")
}

func TestValidateMaxDelayMustBeAtLeastBaseDelay(t *testing.T) {
	cfg := Default()
	cfg.Resume.BaseDelaySecs = 100
	cfg.Resume.MaxDelaySecs = 10

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resume.max_delay_secs")
}

func TestHolderReloadKeepsOldConfigOnValidationFailure(t *testing.T) {
	h := NewHolder(Default())
	bad := Default()
	bad.Resume.MaxRetries = 0

	err := h.Reload(bad)
	require.Error(t, err)
	assert.Equal(t, 10, h.Get().Resume.MaxRetries)
}

func TestHolderReloadSwapsOnSuccess(t *testing.T) {
	h := NewHolder(Default())
	next := Default()
	next.Daemon.LogLevel = "debug"

	require.NoError(t, h.Reload(next))
	assert.Equal(t, "debug", h.Get().Daemon.LogLevel)
}

func TestNonReloadableFields(t *testing.T) {
	assert.True(t, NonReloadable("daemon.http_port"))
	assert.False(t, NonReloadable("resume.max_retries"))
}
