// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events implements the broadcaster (C17): an in-memory
// pub/sub bus that fans out daemon lifecycle, session, resume, and
// subordinate events to HTTP SSE clients and other external
// observers.
package events

import (
	"context"
	"time"
)

// Event represents an immutable event record.
type Event struct {
	ID        string                 `json:"id"`
	Version   string                 `json:"version"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Session   string                 `json:"session,omitempty"`
	Payload   map[string]interface{} `json:"payload"`
}

// EventHandler processes received events.
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// EventFilter for querying event history.
type EventFilter struct {
	Types   []string  // Event types to match (supports wildcards)
	Session string    // Filter by session path
	Since   time.Time // Events after this time
	Until   time.Time // Events before this time
	Limit   int        // Maximum events to return
}

// EventBus is the core event pub/sub system.
type EventBus interface {
	// Publish emits an event to all matching subscribers.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a synchronous handler for events matching pattern.
	Subscribe(pattern string, handler EventHandler) (SubscriptionID, error)

	// SubscribeAsync registers an async handler with buffered channel.
	SubscribeAsync(pattern string, handler EventHandler, bufferSize int) (SubscriptionID, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(id SubscriptionID) error

	// History retrieves past events matching filter.
	History(filter EventFilter) ([]Event, error)

	// SetDefaultSession sets the session path attached to events that
	// don't specify one.
	SetDefaultSession(session string)

	// Close shuts down the event bus gracefully.
	Close() error
}

// Broadcast event types, per the external-interfaces contract: HTTP
// SSE clients and bot observers subscribe to these by pattern.
const (
	EventConnected = "connected"

	EventDaemonStateChanged = "daemon.state_changed"

	EventSessionStopped = "session.stopped"

	EventResumeStarted   = "resume.started"
	EventResumeCompleted = "resume.completed"

	EventSubordinateStarted      = "subordinate.started"
	EventSubordinateStopped      = "subordinate.stopped"
	EventSubordinateHealthFailed = "subordinate.health_failed"
)
