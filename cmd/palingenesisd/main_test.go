// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitCommandSimple(t *testing.T) {
	require.Equal(t, []string{"claude", "--resume"}, splitCommand("claude --resume"))
}

func TestSplitCommandCollapsesWhitespace(t *testing.T) {
	require.Equal(t, []string{"claude", "serve"}, splitCommand("  claude   serve  "))
}

func TestSplitCommandEmpty(t *testing.T) {
	require.Empty(t, splitCommand(""))
}
