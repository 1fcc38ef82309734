// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package rpcsocket implements the local-socket RPC surface (C16): a
// line-delimited text protocol over a Unix-domain socket, one command
// per connection. Mutating commands (PAUSE, RESUME, RELOAD,
// NEW_SESSION) are serialized by the daemon core's own command
// channel, not by this package — the server just translates lines to
// Daemon method calls and results back to response lines.
package rpcsocket

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wingedpig/palingenesis/internal/config"
	"github.com/wingedpig/palingenesis/internal/daemon"
)

// ReadTimeout bounds how long the server waits for a request line on
// an accepted connection, per spec.md §4.12/§5.
const ReadTimeout = 5 * time.Second

// control is the narrow surface the server drives; *daemon.Daemon
// satisfies it. Kept as an interface so tests can fake it without a
// real daemon core and its subsystems.
type control interface {
	Pause() error
	Resume(now bool) error
	Reload(next *config.Config) error
	NewSessionNow(prompt string, skipBackup bool) (string, error)
	Status() (daemon.Status, error)
}

// ConfigReloader loads and validates the config file from disk, for
// handling the RPC RELOAD command (which itself carries no payload).
type ConfigReloader func() (*config.Config, error)

// Server accepts connections on a Unix-domain socket and serves the
// STATUS/PAUSE/RESUME/RELOAD/NEW_SESSION protocol.
type Server struct {
	socketPath string
	daemon     control
	reload     ConfigReloader
	log        zerolog.Logger
	listener   net.Listener
}

// New builds a Server. reload may be nil, in which case RELOAD always
// fails with "ERR reload not configured".
func New(socketPath string, d control, reload ConfigReloader, log zerolog.Logger) *Server {
	return &Server{socketPath: socketPath, daemon: d, reload: reload, log: log}
}

// Run binds the socket and serves connections until ctx is cancelled.
// A stale socket from a crashed prior instance is removed before
// binding; a socket still answering connections is left alone and
// Run returns an error (the caller's PID lock should already have
// caught this case, but Run double-checks).
func (s *Server) Run(ctx context.Context) error {
	if conn, err := net.DialTimeout("unix", s.socketPath, 200*time.Millisecond); err == nil {
		conn.Close()
		return fmt.Errorf("another process is already listening on %s", s.socketPath)
	}
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod %s: %w", s.socketPath, err)
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				os.Remove(s.socketPath)
				return nil
			}
			s.log.Warn().Err(err).Msg("rpcsocket accept error")
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(ReadTimeout))
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}
	line := strings.TrimSpace(scanner.Text())

	cmd, rest, _ := strings.Cut(line, " ")
	switch strings.ToUpper(cmd) {
	case "STATUS":
		s.handleStatus(conn)
	case "PAUSE":
		s.handlePause(conn)
	case "RESUME":
		s.handleResume(conn, strings.TrimSpace(rest) == "--now")
	case "RELOAD":
		s.handleReload(conn)
	case "NEW_SESSION":
		s.handleNewSession(conn, rest)
	default:
		writeLine(conn, "ERR unknown command: "+cmd)
	}
}

func (s *Server) handleStatus(conn net.Conn) {
	st, err := s.daemon.Status()
	if err != nil {
		writeErr(conn, err)
		return
	}
	data, err := json.Marshal(st)
	if err != nil {
		writeLine(conn, "ERR "+err.Error())
		return
	}
	conn.Write(append(data, '\n'))
}

func (s *Server) handlePause(conn net.Conn) {
	err := s.daemon.Pause()
	var already *daemon.AlreadyError
	switch {
	case err == nil:
		writeLine(conn, "OK monitoring paused")
	case errors.As(err, &already):
		writeLine(conn, "OK already paused")
	default:
		writeErr(conn, err)
	}
}

func (s *Server) handleResume(conn net.Conn, now bool) {
	err := s.daemon.Resume(now)
	var already *daemon.AlreadyError
	switch {
	case err == nil:
		writeLine(conn, "OK monitoring resumed")
	case errors.As(err, &already):
		writeLine(conn, "OK already monitoring")
	default:
		writeErr(conn, err)
	}
}

func (s *Server) handleReload(conn net.Conn) {
	if s.reload == nil {
		writeLine(conn, "ERR reload not configured")
		return
	}
	next, err := s.reload()
	if err != nil {
		writeLine(conn, "ERR invalid config: "+err.Error())
		return
	}
	if err := s.daemon.Reload(next); err != nil {
		writeLine(conn, "ERR invalid config: "+err.Error())
		return
	}
	writeLine(conn, "OK configuration reloaded")
}

type newSessionArgs struct {
	CustomPrompt string `json:"custom_prompt"`
	SkipBackup   bool   `json:"skip_backup"`
}

type newSessionResponse struct {
	SessionPath string `json:"session_path"`
	Message     string `json:"message"`
}

func (s *Server) handleNewSession(conn net.Conn, rawArgs string) {
	var args newSessionArgs
	rawArgs = strings.TrimSpace(rawArgs)
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			writeLine(conn, "ERR invalid request: "+err.Error())
			return
		}
	}

	path, err := s.daemon.NewSessionNow(args.CustomPrompt, args.SkipBackup)
	if err != nil {
		writeErr(conn, err)
		return
	}

	data, err := json.Marshal(newSessionResponse{SessionPath: path, Message: "new session started"})
	if err != nil {
		writeLine(conn, "ERR "+err.Error())
		return
	}
	conn.Write(append(data, '\n'))
}

func writeErr(conn net.Conn, err error) {
	if errors.Is(err, daemon.ErrShuttingDown) {
		writeLine(conn, "ERR shutting down")
		return
	}
	writeLine(conn, "ERR "+err.Error())
}

func writeLine(conn net.Conn, s string) {
	conn.Write([]byte(s + "\n"))
}
