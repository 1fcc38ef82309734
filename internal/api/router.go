// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api is the HTTP boundary adapter (C18a): a thin gorilla/mux
// router over the same control surface internal/rpcsocket serves, plus
// the event-history/live-stream endpoints tools like the Grafana
// dashboard poll or subscribe to. Per spec.md's Non-goals, this is
// deliberately the external collaborator — it has no business logic of
// its own beyond translating HTTP requests into Control/EventBus calls.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/wingedpig/palingenesis/internal/api/handlers"
	"github.com/wingedpig/palingenesis/internal/api/middleware"
	"github.com/wingedpig/palingenesis/internal/events"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Host    string
	Port    int
	TLSCert string // Path to TLS certificate file
	TLSKey  string // Path to TLS private key file
}

// Dependencies holds what the router needs to build its handlers.
type Dependencies struct {
	Control handlers.Control
	Reload  handlers.ConfigReloader
	Bus     events.EventBus
	Log     zerolog.Logger
}

// NewRouter builds the HTTP boundary adapter's route table.
func NewRouter(deps Dependencies) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging(deps.Log))
	r.Use(middleware.Recovery(deps.Log))
	r.Use(middleware.CORS)

	ctl := handlers.NewControlHandler(deps.Control, deps.Reload)
	r.HandleFunc("/status", ctl.Status).Methods("GET")
	r.HandleFunc("/pause", ctl.Pause).Methods("POST")
	r.HandleFunc("/resume", ctl.Resume).Methods("POST")
	r.HandleFunc("/reload", ctl.Reload).Methods("POST")
	r.HandleFunc("/new-session", ctl.NewSession).Methods("POST")

	if deps.Bus != nil {
		eventHandler := handlers.NewEventHandler(deps.Bus)
		r.HandleFunc("/events", eventHandler.History).Methods("GET")
		r.HandleFunc("/events/ws", eventHandler.WebSocket).Methods("GET")
	}

	return r
}

// Server represents the API server.
type Server struct {
	router *mux.Router
	cfg    ServerConfig
	server *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, deps Dependencies) *Server {
	return &Server{
		router: NewRouter(deps),
		cfg:    cfg,
	}
}

// Router returns the underlying router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ListenAndServe starts the server. If TLS is configured (tls_cert and
// tls_key), uses HTTPS.
func (s *Server) ListenAndServe() error {
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	tlsEnabled, err := CheckTLSConfig(s.cfg.TLSCert, s.cfg.TLSKey)
	if err != nil {
		return fmt.Errorf("TLS configuration error: %w", err)
	}

	if tlsEnabled {
		certPath := expandPath(s.cfg.TLSCert)
		keyPath := expandPath(s.cfg.TLSKey)
		return s.server.ListenAndServeTLS(certPath, keyPath)
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	return s.server.Shutdown(shutdownCtx)
}
