// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wingedpig/palingenesis/internal/config"
)

func TestConfigInitWritesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	configInitPath = path
	configInitForce = false
	defer func() { configInitPath, configInitForce = "", false }()

	require.NoError(t, runConfigInit(fakeCmd(t), nil))

	cfg, err := config.NewLoader().Load(path)
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Daemon.LogLevel)
}

func TestConfigInitRefusesToOverwriteWithoutForce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, config.NewLoader().Save(config.Default(), path))

	configInitPath = path
	configInitForce = false
	defer func() { configInitPath, configInitForce = "", false }()

	err := runConfigInit(fakeCmd(t), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")
}

func TestConfigInitForceOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, config.NewLoader().Save(config.Default(), path))

	configInitPath = path
	configInitForce = true
	defer func() { configInitPath, configInitForce = "", false }()

	require.NoError(t, runConfigInit(fakeCmd(t), nil))
}

func TestSelectSectionKnown(t *testing.T) {
	cfg := config.Default()
	section, err := selectSection(cfg, "resume")
	require.NoError(t, err)
	require.Equal(t, cfg.Resume, section)
}

func TestSelectSectionUnknown(t *testing.T) {
	_, err := selectSection(config.Default(), "bogus")
	require.Error(t, err)
}

func TestConfigValidateRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := config.Default()
	cfg.Resume.MaxDelaySecs = 1
	cfg.Resume.BaseDelaySecs = 100
	require.NoError(t, config.NewLoader().Save(cfg, path))

	configValidatePath = path
	defer func() { configValidatePath = "" }()

	err := runConfigValidate(fakeCmd(t), nil)
	require.Error(t, err)
}

func TestConfigValidateAcceptsDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, config.NewLoader().Save(config.Default(), path))

	configValidatePath = path
	defer func() { configValidatePath = "" }()

	require.NoError(t, runConfigValidate(fakeCmd(t), nil))
}
