// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client provides a Go client library for talking to a running
// palingenesis daemon over its local control socket.
//
// # Getting Started
//
// Create a client pointing at the daemon's socket:
//
//	c := client.New("/run/palingenesis/palingenesis.sock")
//
//	st, err := c.Status(ctx)
//	err = c.Pause(ctx)
//	err = c.Resume(ctx, false)
//	path, msg, err := c.NewSession(ctx, "continue the migration", false)
//
// # Configuration Options
//
// The client can be configured with functional options:
//
//	c := client.New(sockPath, client.WithTimeout(5*time.Second))
//
// # Error Handling
//
// Protocol-level failures ("ERR ...\n" response lines) are returned as
// *APIError values:
//
//	if err := c.Pause(ctx); err != nil {
//	    if apiErr, ok := err.(*client.APIError); ok {
//	        fmt.Println(apiErr.Message)
//	    }
//	}
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"
)

// Client is a palingenesis control-socket client.
//
// Each call opens a new connection, writes one request line, and reads
// one response line — the daemon's rpcsocket server is one-command-per-
// connection, so the Client does not keep a persistent connection open.
//
// The Client is safe for concurrent use by multiple goroutines.
type Client struct {
	socketPath string
	timeout    time.Duration
	dial       func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Option configures a [Client]. Options are passed to [New] to customize
// client behavior.
type Option func(*Client)

// New creates a new Client that dials the Unix-domain socket at
// socketPath for every request.
//
// By default, the client uses a 5-second per-request timeout. Use
// [WithTimeout] or [WithDialer] to customize.
func New(socketPath string, opts ...Option) *Client {
	c := &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
	c.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, network, addr)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the per-request timeout. The default is 5 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithDialer overrides how the client opens its socket connection. This
// exists mainly so tests can substitute a fake or delayed dialer.
func WithDialer(dial func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(c *Client) {
		c.dial = dial
	}
}

// SocketPath returns the control socket path this client dials.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// APIError represents an "ERR ..." response line from the daemon.
//
// Unlike an HTTP API, the control protocol carries no machine-readable
// error code — Message is the full text the daemon wrote after "ERR ".
type APIError struct {
	Message string
}

func (e *APIError) Error() string { return e.Message }

// Status is the daemon's STATUS response. Field meanings mirror
// internal/daemon.Status; it is duplicated here so callers of this
// package don't need to import the daemon package.
type Status struct {
	State            string  `json:"state"`
	UptimeSeconds    float64 `json:"uptime_s"`
	CurrentSession   string  `json:"current_session,omitempty"`
	TimeSavedSeconds float64 `json:"time_saved_seconds"`
	TimeSavedHuman   string  `json:"time_saved_human"`
	Stats            struct {
		SavesCount         int `json:"saves_count"`
		SuccessfulResumes  int `json:"successful_resumes"`
		FailedResumes      int `json:"failed_resumes"`
		RateLimits         int `json:"rate_limits"`
		ContextExhaustions int `json:"context_exhaustions"`
		TimeSavedSeconds   float64 `json:"time_saved_seconds"`
	} `json:"stats"`
}

// Status requests the daemon's current state snapshot.
func (c *Client) Status(ctx context.Context) (Status, error) {
	line, err := c.do(ctx, "STATUS")
	if err != nil {
		return Status{}, err
	}
	var st Status
	if err := json.Unmarshal([]byte(line), &st); err != nil {
		return Status{}, fmt.Errorf("parse status response: %w", err)
	}
	return st, nil
}

// Pause tells the daemon to stop dispatching resumes. A daemon already
// paused responds OK, not an error.
func (c *Client) Pause(ctx context.Context) error {
	_, err := c.do(ctx, "PAUSE")
	return err
}

// Resume tells the daemon to resume dispatching. If now is true and a
// stopped session is waiting out its backoff, the daemon fires that
// pending resume immediately instead of waiting for the delay to end.
func (c *Client) Resume(ctx context.Context, now bool) error {
	cmd := "RESUME"
	if now {
		cmd = "RESUME --now"
	}
	_, err := c.do(ctx, cmd)
	return err
}

// Reload tells the daemon to reread and validate its config file and
// hot-swap it in.
func (c *Client) Reload(ctx context.Context) error {
	_, err := c.do(ctx, "RELOAD")
	return err
}

// NewSession tells the daemon to start a new session in place of the
// current (stopped) one, optionally with a custom first prompt and
// skipping the pre-resume backup.
func (c *Client) NewSession(ctx context.Context, prompt string, skipBackup bool) (sessionPath, message string, err error) {
	cmd := "NEW_SESSION"
	if prompt != "" || skipBackup {
		body, merr := json.Marshal(struct {
			CustomPrompt string `json:"custom_prompt"`
			SkipBackup   bool   `json:"skip_backup"`
		}{CustomPrompt: prompt, SkipBackup: skipBackup})
		if merr != nil {
			return "", "", fmt.Errorf("marshal new-session request: %w", merr)
		}
		cmd = "NEW_SESSION " + string(body)
	}

	line, err := c.do(ctx, cmd)
	if err != nil {
		return "", "", err
	}

	var resp struct {
		SessionPath string `json:"session_path"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return "", "", fmt.Errorf("parse new-session response: %w", err)
	}
	return resp.SessionPath, resp.Message, nil
}

// do opens a connection, writes cmd as a single request line, and
// returns the single response line (without its trailing newline). An
// "ERR ..." response is translated into an *APIError; an "OK ..."
// response is returned verbatim for callers that only check err == nil;
// any other line (JSON payloads from STATUS/NEW_SESSION) is returned as
// the raw line for the caller to unmarshal.
func (c *Client) do(ctx context.Context, cmd string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dial(ctx, "unix", c.socketPath)
	if err != nil {
		return "", fmt.Errorf("connect to %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		return "", fmt.Errorf("write request: %w", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	line = strings.TrimRight(line, "\n")

	if rest, ok := strings.CutPrefix(line, "ERR "); ok {
		return "", &APIError{Message: rest}
	}

	return line, nil
}
