// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wingedpig/palingenesis/internal/config"
	"github.com/wingedpig/palingenesis/internal/daemon"
)

// Control is the narrow surface the HTTP adapter drives — the same
// shape internal/rpcsocket binds to, so both boundary adapters serve
// the daemon core through one interface rather than two.
type Control interface {
	Pause() error
	Resume(now bool) error
	Reload(next *config.Config) error
	NewSessionNow(prompt string, skipBackup bool) (string, error)
	Status() (daemon.Status, error)
}

// ConfigReloader loads and validates the config file from disk.
type ConfigReloader func() (*config.Config, error)

// ControlHandler exposes the daemon's control operations over plain
// JSON HTTP, for tools that would rather speak HTTP than the control
// socket's line protocol (the Grafana dashboard's status panel, a
// health-check probe).
type ControlHandler struct {
	daemon Control
	reload ConfigReloader
}

// NewControlHandler creates a ControlHandler. reload may be nil, in
// which case Reload always responds 400.
func NewControlHandler(d Control, reload ConfigReloader) *ControlHandler {
	return &ControlHandler{daemon: d, reload: reload}
}

func (h *ControlHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.daemon.Status()
	if err != nil {
		h.writeErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

func (h *ControlHandler) Pause(w http.ResponseWriter, r *http.Request) {
	err := h.daemon.Pause()
	var already *daemon.AlreadyError
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, map[string]string{"message": "monitoring paused"})
	case errors.As(err, &already):
		WriteJSON(w, http.StatusOK, map[string]string{"message": already.Message})
	default:
		h.writeErr(w, err)
	}
}

func (h *ControlHandler) Resume(w http.ResponseWriter, r *http.Request) {
	now := r.URL.Query().Get("now") == "true"
	err := h.daemon.Resume(now)
	var already *daemon.AlreadyError
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, map[string]string{"message": "monitoring resumed"})
	case errors.As(err, &already):
		WriteJSON(w, http.StatusOK, map[string]string{"message": already.Message})
	default:
		h.writeErr(w, err)
	}
}

func (h *ControlHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.reload == nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "reload not configured")
		return
	}
	next, err := h.reload()
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid config: "+err.Error())
		return
	}
	if err := h.daemon.Reload(next); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid config: "+err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "configuration reloaded"})
}

type newSessionRequest struct {
	CustomPrompt string `json:"custom_prompt"`
	SkipBackup   bool   `json:"skip_backup"`
}

func (h *ControlHandler) NewSession(w http.ResponseWriter, r *http.Request) {
	var req newSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	path, err := h.daemon.NewSessionNow(req.CustomPrompt, req.SkipBackup)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"session_path": path,
		"message":      "new session started",
	})
}

func (h *ControlHandler) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, daemon.ErrShuttingDown):
		WriteError(w, http.StatusServiceUnavailable, ErrShuttingDown, err.Error())
	default:
		var notFound *daemon.NotFoundError
		if errors.As(err, &notFound) {
			WriteError(w, http.StatusNotFound, ErrNotFound, err.Error())
			return
		}
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
	}
}
