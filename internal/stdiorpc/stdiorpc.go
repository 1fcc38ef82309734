// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package stdiorpc implements the stdio JSON-RPC framer (C18b): a
// JSON-RPC 2.0 server reading requests and writing responses over
// stdin/stdout, framed with an MCP-style "Content-Length: N\r\n\r\n"
// header so messages can be pipelined over a single stream without a
// line-delimited protocol's quoting problems. It drives the same
// Control surface internal/rpcsocket and internal/api do.
package stdiorpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wingedpig/palingenesis/internal/config"
	"github.com/wingedpig/palingenesis/internal/daemon"
)

// control is the narrow surface this adapter drives; kept separate
// from internal/rpcsocket's identical interface so the two packages
// don't import each other just to share a type.
type control interface {
	Pause() error
	Resume(now bool) error
	Reload(next *config.Config) error
	NewSessionNow(prompt string, skipBackup bool) (string, error)
	Status() (daemon.Status, error)
}

// ConfigReloader loads and validates the config file from disk.
type ConfigReloader func() (*config.Config, error)

// request is a JSON-RPC 2.0 request object.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// response is a JSON-RPC 2.0 response object. Exactly one of Result or
// Error is set, per the spec.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Standard JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Server serves JSON-RPC requests framed over an io.Reader/io.Writer
// pair, normally os.Stdin/os.Stdout.
type Server struct {
	daemon control
	reload ConfigReloader
	log    zerolog.Logger
}

// New builds a Server. reload may be nil, in which case the "reload"
// method always returns an error.
func New(d control, reload ConfigReloader, log zerolog.Logger) *Server {
	return &Server{daemon: d, reload: reload, log: log}
}

// Serve reads Content-Length-framed JSON-RPC requests from r and writes
// framed responses to w until r is exhausted, ctx is cancelled, or a
// framing error makes the stream unrecoverable.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw, err := readFrame(br)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		resp := s.handle(raw)
		if err := writeFrame(w, resp); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}
}

func (s *Server) handle(raw []byte) response {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return response{JSONRPC: "2.0", Error: &rpcError{Code: codeParseError, Message: "parse error: " + err.Error()}}
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: codeInvalidRequest, Message: "invalid request"}}
	}

	result, err := s.dispatch(req.Method, req.Params)
	if err != nil {
		var invalidParams *invalidParamsError
		if errors.As(err, &invalidParams) {
			return response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: codeInvalidParams, Message: err.Error()}}
		}
		var notFound *methodNotFoundError
		if errors.As(err, &notFound) {
			return response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: codeMethodNotFound, Message: err.Error()}}
		}
		return response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: codeInternalError, Message: err.Error()}}
	}

	return response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

type methodNotFoundError struct{ method string }

func (e *methodNotFoundError) Error() string { return "method not found: " + e.method }

type invalidParamsError struct{ msg string }

func (e *invalidParamsError) Error() string { return e.msg }

func (s *Server) dispatch(method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case "status":
		return s.daemon.Status()

	case "pause":
		err := s.daemon.Pause()
		var already *daemon.AlreadyError
		if errors.As(err, &already) {
			return map[string]string{"message": already.Message}, nil
		}
		if err != nil {
			return nil, err
		}
		return map[string]string{"message": "monitoring paused"}, nil

	case "resume":
		var p struct {
			Now bool `json:"now"`
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, &invalidParamsError{msg: err.Error()}
			}
		}
		err := s.daemon.Resume(p.Now)
		var already *daemon.AlreadyError
		if errors.As(err, &already) {
			return map[string]string{"message": already.Message}, nil
		}
		if err != nil {
			return nil, err
		}
		return map[string]string{"message": "monitoring resumed"}, nil

	case "reload":
		if s.reload == nil {
			return nil, errors.New("reload not configured")
		}
		next, err := s.reload()
		if err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		if err := s.daemon.Reload(next); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return map[string]string{"message": "configuration reloaded"}, nil

	case "new_session":
		var p struct {
			CustomPrompt string `json:"custom_prompt"`
			SkipBackup   bool   `json:"skip_backup"`
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, &invalidParamsError{msg: err.Error()}
			}
		}
		path, err := s.daemon.NewSessionNow(p.CustomPrompt, p.SkipBackup)
		if err != nil {
			return nil, err
		}
		return map[string]string{"session_path": path, "message": "new session started"}, nil

	default:
		return nil, &methodNotFoundError{method: method}
	}
}

// readFrame reads one "Content-Length: N\r\n\r\n<N bytes>" frame.
func readFrame(br *bufio.Reader) ([]byte, error) {
	var length int
	haveLength := false

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length: %w", err)
			}
			length = n
			haveLength = true
		}
	}

	if !haveLength {
		return nil, errors.New("missing Content-Length header")
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeFrame(w io.Writer, resp response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
