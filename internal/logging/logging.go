// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package logging wires up the daemon's structured logger. Components
// that only need occasional operational notices keep using the
// standard "log" package directly, matching the teacher's texture;
// this package is reserved for the subsystems whose output operators
// actually filter and query (resume decisions, classification,
// lifecycle transitions).
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger from the configured level and
// destination. Foreground mode gets human-friendly console output;
// daemonized mode (or an explicit log_file) gets plain JSON lines.
func New(level string, logFile string, foreground bool) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return zerolog.Logger{}, err
		}
		out = f
	} else if foreground {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}
