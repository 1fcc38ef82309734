// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wingedpig/palingenesis/internal/paths"
	"github.com/wingedpig/palingenesis/internal/pidlock"
)

// errDaemonNotRunning is the sentinel "stop" and "restart" use to tell
// a legitimate no-op ("nothing to stop") apart from a real failure.
var errDaemonNotRunning = errors.New("daemon is not running")

var daemonForeground bool

func init() {
	daemonStartCmd.Flags().BoolVar(&daemonForeground, "foreground", false, "run the daemon attached to this terminal instead of detaching")

	daemonCmd.AddCommand(daemonStartCmd, daemonStopCmd, daemonRestartCmd, daemonReloadCmd, daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start, stop, restart, reload, or check the daemon process",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	RunE:  runDaemonStop,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the daemon",
	RunE:  runDaemonRestart,
}

var daemonReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the daemon's configuration without restarting it",
	RunE:  runDaemonReload,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the daemon process is running",
	RunE:  runDaemonStatus,
}

// daemonBinary locates palingenesisd alongside the running palingenesis
// executable, falling back to $PATH.
func daemonBinary() (string, error) {
	self, err := os.Executable()
	if err == nil {
		candidate := filepath.Join(filepath.Dir(self), "palingenesisd")
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, nil
		}
	}
	path, err := exec.LookPath("palingenesisd")
	if err != nil {
		return "", fmt.Errorf("find palingenesisd binary: %w", err)
	}
	return path, nil
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	dirs, err := paths.Resolve()
	if err != nil {
		return internalErr(fmt.Errorf("resolve paths: %w", err))
	}
	if _, running := pidlock.Running(dirs.PIDFile()); running {
		return userErr("daemon is already running")
	}

	bin, err := daemonBinary()
	if err != nil {
		return internalErr(err)
	}

	if daemonForeground {
		c := exec.Command(bin, "-foreground")
		c.Stdout, c.Stderr, c.Stdin = os.Stdout, os.Stderr, os.Stdin
		return runForeground(c)
	}

	c := exec.Command(bin)
	c.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return internalErr(fmt.Errorf("open /dev/null: %w", err))
	}
	defer devnull.Close()
	c.Stdin, c.Stdout, c.Stderr = devnull, devnull, devnull

	if err := c.Start(); err != nil {
		return internalErr(fmt.Errorf("start daemon: %w", err))
	}
	fmt.Printf("started (pid %d)\n", c.Process.Pid)
	return nil
}

// runForeground is split out so tests can substitute a fake command
// without actually exec'ing a binary.
var runForeground = func(c *exec.Cmd) error {
	if err := c.Run(); err != nil {
		return internalErr(fmt.Errorf("daemon exited: %w", err))
	}
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	dirs, err := paths.Resolve()
	if err != nil {
		return internalErr(fmt.Errorf("resolve paths: %w", err))
	}

	pid, running := pidlock.Running(dirs.PIDFile())
	if !running {
		return &exitError{code: ExitUserErr, err: errDaemonNotRunning}
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return internalErr(fmt.Errorf("find process %d: %w", pid, err))
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return internalErr(fmt.Errorf("signal process %d: %w", pid, err))
	}

	if err := waitForExit(pid, 10*time.Second); err != nil {
		return userErr("%w", err)
	}
	fmt.Println("stopped")
	return nil
}

// waitForExit polls until pid is no longer alive or timeout elapses.
func waitForExit(pid int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	for time.Now().Before(deadline) {
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop within %s", timeout)
}

func runDaemonRestart(cmd *cobra.Command, args []string) error {
	if err := runDaemonStop(cmd, args); err != nil && !errors.Is(err, errDaemonNotRunning) {
		return err
	}
	return runDaemonStart(cmd, args)
}

func runDaemonReload(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	if err := c.Reload(ctx); err != nil {
		return notRunningOrErr(err)
	}
	fmt.Println("reloaded")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	dirs, err := paths.Resolve()
	if err != nil {
		return internalErr(fmt.Errorf("resolve paths: %w", err))
	}

	pid, running := pidlock.Running(dirs.PIDFile())
	if !running {
		fmt.Println("not running")
		return &exitError{code: ExitUserErr, err: errDaemonNotRunning}
	}
	fmt.Printf("running (pid %d)\n", pid)
	return nil
}
