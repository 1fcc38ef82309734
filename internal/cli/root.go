// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package cli implements the palingenesis command-line client: the CLI
// argument parsing surface spec.md's Non-goals name as an external
// collaborator, talking to a running daemon over pkg/client's control
// socket (or, for daemon start/stop/restart, over the process lifecycle
// itself).
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wingedpig/palingenesis/internal/paths"
	"github.com/wingedpig/palingenesis/pkg/client"
)

// Exit codes per spec.md §6: 0 success, 1 user error or daemon not
// running, 2 internal error.
const (
	ExitOK       = 0
	ExitUserErr  = 1
	ExitInternal = 2
)

var rootCmd = &cobra.Command{
	Use:   "palingenesis",
	Short: "Control a running palingenesis daemon",
	Long:  "palingenesis watches Claude Code sessions and automatically resumes them past rate limits, context exhaustion, and crashes. This is the control client for a running daemon.",
}

// exitError carries the process exit code a RunE failure should
// produce, distinguishing user-facing mistakes from internal failures.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// userErr wraps err as a spec.md exit-code-1 failure (bad input, daemon
// not running, rejected request).
func userErr(format string, args ...interface{}) error {
	return &exitError{code: ExitUserErr, err: fmt.Errorf(format, args...)}
}

// internalErr wraps err as a spec.md exit-code-2 failure (the daemon or
// local filesystem state is broken in a way the user can't fix by
// retrying with different flags).
func internalErr(err error) error {
	return &exitError{code: ExitInternal, err: err}
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "palingenesis:", ee.err)
			return ee.code
		}
		fmt.Fprintln(os.Stderr, "palingenesis:", err)
		return ExitUserErr
	}
	return ExitOK
}

// newClient builds a control-socket client pointed at the resolved
// runtime directory's socket. Overridable in tests via socketPathOverride.
func newClient() (*client.Client, error) {
	sock := socketPathOverride
	if sock == "" {
		dirs, err := paths.Resolve()
		if err != nil {
			return nil, internalErr(fmt.Errorf("resolve paths: %w", err))
		}
		sock = dirs.SocketFile()
	}
	return client.New(sock), nil
}

// socketPathOverride lets tests point the CLI at a fake socket without
// touching the real per-user runtime directory.
var socketPathOverride string
