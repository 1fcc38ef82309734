// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package daemon implements the daemon core (C14): the state machine
// that owns Starting/Monitoring/Paused/Resuming/Waiting/Stopping and
// wires the session monitor, classifier, dispatcher, resume
// strategies, subordinate supervisor, state store, audit log, and
// event broadcaster into one control loop.
package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wingedpig/palingenesis/internal/audit"
	"github.com/wingedpig/palingenesis/internal/classifier"
	"github.com/wingedpig/palingenesis/internal/config"
	"github.com/wingedpig/palingenesis/internal/dispatcher"
	"github.com/wingedpig/palingenesis/internal/events"
	"github.com/wingedpig/palingenesis/internal/procmon"
	"github.com/wingedpig/palingenesis/internal/sessionparser"
	"github.com/wingedpig/palingenesis/internal/statestore"
	"github.com/wingedpig/palingenesis/internal/strategy"
	"github.com/wingedpig/palingenesis/internal/subordinate"
	"github.com/wingedpig/palingenesis/internal/watcher"
)

// Deps are the already-constructed subsystems the daemon core wires
// together. The entrypoint builds these (from config) and owns
// shutting them down via the shutdown coordinator; Daemon only reads
// their event channels and drives its own state transitions.
type Deps struct {
	Config *config.Holder
	Log    zerolog.Logger
	Store  *statestore.Store
	Audit  *audit.Log
	Bus    events.EventBus

	Watcher     *watcher.Watcher
	ProcMon     *procmon.Monitor
	Subordinate *subordinate.Supervisor // nil when [subordinate] is disabled

	Dispatch *dispatcher.Dispatcher

	ParseOptions sessionparser.Options
	ClassifyCfg  classifier.Config

	// BackupDir is {state_dir}/backups, used by NewSessionNow when the
	// caller doesn't request skip_backup.
	BackupDir string
}

// result carries a strategy's outcome back to the run loop. ctx is the
// ResumeContext of the attempt that produced it.
type result struct {
	outcome strategy.Outcome
	reason  classifier.Reason
	ctx     strategy.ResumeContext
}

type cmdKind int

const (
	cmdPause cmdKind = iota
	cmdResume
	cmdReload
	cmdNewSession
	cmdStatus
)

type cmdReq struct {
	kind       cmdKind
	now        bool
	nextConfig *config.Config
	prompt     string
	skipBackup bool
	reply      chan cmdResp
}

type cmdResp struct {
	err         error
	message     string
	sessionPath string
	status      Status
}

// Daemon owns the resume control loop. All phase transitions happen
// on the single goroutine running Run; every external control surface
// (CLI, RPC, HTTP) talks to it only through the cmds channel, so no
// separate lock is needed for the phase/attempt/current-session
// bookkeeping below.
type Daemon struct {
	cfg   *config.Holder
	log   zerolog.Logger
	store *statestore.Store
	audit *audit.Log
	bus   events.EventBus

	watch *watcher.Watcher
	proc  *procmon.Monitor
	sub   *subordinate.Supervisor

	dispatch    *dispatcher.Dispatcher
	parseOpts   sessionparser.Options
	classifyCfg classifier.Config

	caps       strategy.Capabilities
	subAdapter *subordinateAdapter
	backupDir  string

	cmds     chan cmdReq
	cancelCh chan struct{}
	resultCh chan result
	stopped  chan struct{}

	startedAt time.Time

	// run-loop-owned bookkeeping; never touched outside Run's goroutine.
	sessionCache  map[string]sessionparser.Session
	currentPath   string
	attempt       int
	waitTimer     *time.Timer
	waitFireCh    <-chan time.Time
	pendingResume *pendingResume
	lastReason    classifier.Reason
	resumeHistory []strategy.ResumeContext // every attempt tried against currentPath since its last stop; reset per session
	shuttingDown  bool

	mu               sync.Mutex
	lastAssistantExe string
}

// New builds a Daemon around deps. It does not start the run loop;
// call Run.
func New(deps Deps) *Daemon {
	d := &Daemon{
		cfg:          deps.Config,
		log:          deps.Log,
		store:        deps.Store,
		audit:        deps.Audit,
		bus:          deps.Bus,
		watch:        deps.Watcher,
		proc:         deps.ProcMon,
		sub:          deps.Subordinate,
		dispatch:     deps.Dispatch,
		parseOpts:    deps.ParseOptions,
		classifyCfg:  deps.ClassifyCfg,
		cmds:         make(chan cmdReq),
		cancelCh:     make(chan struct{}),
		resultCh:     make(chan result, 4),
		stopped:      make(chan struct{}),
		sessionCache: make(map[string]sessionparser.Session),
		startedAt:    time.Now(),
		backupDir:    deps.BackupDir,
	}

	d.caps = &capsAdapter{store: deps.Store, audit: deps.Audit, bus: deps.Bus, log: deps.Log}
	d.subAdapter = newSubordinateAdapter(deps.Config, d.getLastAssistantExe)

	return d
}

func (d *Daemon) getLastAssistantExe() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastAssistantExe
}

func (d *Daemon) setLastAssistantExe(exe string) {
	d.mu.Lock()
	d.lastAssistantExe = exe
	d.mu.Unlock()
}

// Run drives the state machine until ctx is cancelled. It performs
// the Starting -> Monitoring transition immediately, then services
// watcher/process/strategy/control events until shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	defer close(d.stopped)

	if err := d.store.Mutate(func(s *statestore.State) {
		s.Phase = statestore.PhaseMonitoring
	}); err != nil {
		return err
	}
	d.audit.Write(audit.Entry{EventType: audit.EventDaemonStarted, Outcome: audit.OutcomeSuccess})
	d.broadcastStateChange(statestore.PhaseStarting, statestore.PhaseMonitoring)

	var procErrs, watchErrs <-chan error
	var procEvents <-chan procmon.Event
	var watchEvents <-chan watcher.Event
	if d.proc != nil {
		procEvents = d.proc.Events()
		procErrs = d.proc.Errors()
	}
	if d.watch != nil {
		watchEvents = d.watch.Events()
		watchErrs = d.watch.Errors()
	}
	var subEvents <-chan subordinate.Event
	if d.sub != nil {
		subEvents = d.sub.Events()
	}

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil

		case req := <-d.cmds:
			d.handleCmd(req)

		case ev, ok := <-watchEvents:
			if !ok {
				watchEvents = nil
				continue
			}
			d.handleWatchEvent(ev)

		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			d.log.Error().Err(err).Msg("watcher reported a fatal error")

		case ev, ok := <-procEvents:
			if !ok {
				procEvents = nil
				continue
			}
			d.handleProcEvent(ev)

		case err, ok := <-procErrs:
			if !ok {
				procErrs = nil
				continue
			}
			d.log.Warn().Err(err).Msg("process enumeration error")

		case ev, ok := <-subEvents:
			if !ok {
				subEvents = nil
				continue
			}
			d.handleSubordinateEvent(ev)

		case r := <-d.resultCh:
			d.handleResult(r)

		case <-d.waitFireChOrNever():
			d.fireWait()
		}
	}
}

// waitFireChOrNever returns the active wait timer's channel, or a nil
// channel (which blocks forever in a select) when no wait is pending.
func (d *Daemon) waitFireChOrNever() <-chan time.Time {
	return d.waitFireCh
}

func (d *Daemon) shutdown() {
	if d.shuttingDown {
		return
	}
	d.shuttingDown = true
	close(d.cancelCh)
	if d.waitTimer != nil {
		d.waitTimer.Stop()
	}
	d.store.Mutate(func(s *statestore.State) {
		s.Phase = statestore.PhaseStopping
	})
	d.audit.Write(audit.Entry{EventType: audit.EventDaemonStopped, Outcome: audit.OutcomeSuccess})
}

func (d *Daemon) broadcastStateChange(from, to statestore.Phase) {
	d.bus.Publish(context.Background(), events.Event{
		Type:    events.EventDaemonStateChanged,
		Payload: map[string]any{"from": from, "to": to},
	})
}
