// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"github.com/wingedpig/palingenesis/internal/audit"
	"github.com/wingedpig/palingenesis/internal/config"
	"github.com/wingedpig/palingenesis/internal/statestore"
)

// send delivers req to the run loop and waits for its response, or
// returns ErrShuttingDown if the loop has already exited.
func (d *Daemon) send(req cmdReq) cmdResp {
	req.reply = make(chan cmdResp, 1)
	select {
	case d.cmds <- req:
	case <-d.stopped:
		return cmdResp{err: ErrShuttingDown}
	}
	select {
	case resp := <-req.reply:
		return resp
	case <-d.stopped:
		return cmdResp{err: ErrShuttingDown}
	}
}

// Pause transitions Monitoring -> Paused. Calling it while already
// paused is idempotent: it returns *AlreadyError rather than failing.
func (d *Daemon) Pause() error {
	resp := d.send(cmdReq{kind: cmdPause})
	return resp.err
}

// Resume transitions Paused -> Monitoring. With now=true, and a
// stopped session already pending resolution, it also nudges the
// waiting strategy to fire immediately instead of waiting out its
// backoff.
func (d *Daemon) Resume(now bool) error {
	resp := d.send(cmdReq{kind: cmdResume, now: now})
	return resp.err
}

// Reload validates and swaps in next. Only values the daemon reads from
// the config holder at use time (the resume continue/new-session
// command templates) change behaviour at once; the backoff engine,
// debounce window, log level, watcher, process monitor and subordinate
// supervisor keep the values they were built with at startup.
func (d *Daemon) Reload(next *config.Config) error {
	resp := d.send(cmdReq{kind: cmdReload, nextConfig: next})
	return resp.err
}

// NewSessionNow forces a new-session resume outside the normal
// classifier trigger. Returns *NotFoundError if there is no current
// session to replace.
func (d *Daemon) NewSessionNow(prompt string, skipBackup bool) (string, error) {
	resp := d.send(cmdReq{kind: cmdNewSession, prompt: prompt, skipBackup: skipBackup})
	return resp.sessionPath, resp.err
}

// Status returns a point-in-time snapshot for the CLI/RPC/HTTP
// surfaces.
func (d *Daemon) Status() (Status, error) {
	resp := d.send(cmdReq{kind: cmdStatus})
	return resp.status, resp.err
}

func (d *Daemon) handleCmd(req cmdReq) {
	if d.shuttingDown {
		req.reply <- cmdResp{err: ErrShuttingDown}
		return
	}

	switch req.kind {
	case cmdPause:
		d.handlePause(req)
	case cmdResume:
		d.handleResume(req)
	case cmdReload:
		d.handleReload(req)
	case cmdNewSession:
		d.handleNewSessionNow(req)
	case cmdStatus:
		req.reply <- cmdResp{status: d.snapshotStatus()}
	}
}

func (d *Daemon) handlePause(req cmdReq) {
	st := d.store.Get()
	if st.Phase == statestore.PhasePaused {
		req.reply <- cmdResp{err: &AlreadyError{Message: "already paused"}}
		return
	}

	if err := d.store.Mutate(func(s *statestore.State) { s.Phase = statestore.PhasePaused }); err != nil {
		req.reply <- cmdResp{err: err}
		return
	}
	d.broadcastStateChange(st.Phase, statestore.PhasePaused)
	req.reply <- cmdResp{}
}

func (d *Daemon) handleResume(req cmdReq) {
	st := d.store.Get()
	if st.Phase != statestore.PhasePaused {
		req.reply <- cmdResp{err: &AlreadyError{Message: "already monitoring"}}
		return
	}

	if err := d.store.Mutate(func(s *statestore.State) { s.Phase = statestore.PhaseMonitoring }); err != nil {
		req.reply <- cmdResp{err: err}
		return
	}
	d.broadcastStateChange(statestore.PhasePaused, statestore.PhaseMonitoring)

	if req.now && d.pendingResume != nil {
		d.fireWait()
	}
	req.reply <- cmdResp{}
}

func (d *Daemon) handleReload(req cmdReq) {
	if err := d.cfg.Reload(req.nextConfig); err != nil {
		req.reply <- cmdResp{err: err}
		return
	}
	d.audit.Write(audit.Entry{EventType: audit.EventConfigChanged, Outcome: audit.OutcomeSuccess})
	req.reply <- cmdResp{}
}

func (d *Daemon) handleNewSessionNow(req cmdReq) {
	path := d.currentPath
	if path == "" {
		req.reply <- cmdResp{err: &NotFoundError{Message: "no active session to replace"}}
		return
	}

	prompt := req.prompt
	if prompt == "" {
		prompt = "Continue workflow"
	}

	if !req.skipBackup {
		if backupPath, err := backupSessionFile(path, d.backupDir); err != nil {
			d.log.Warn().Err(err).Msg("new-session backup failed, proceeding without it")
		} else {
			d.audit.Write(audit.Entry{
				EventType:   audit.EventSessionBackedUp,
				SessionPath: backupPath,
				ActionTaken: "new_session_forced",
				Outcome:     audit.OutcomeSuccess,
			})
		}
	}

	newPath, err := d.subAdapter.StartNewSession(dirOf(path), prompt)
	if err != nil {
		req.reply <- cmdResp{err: err}
		return
	}

	d.caps.IncrementCounter("session_created", 1)
	d.audit.Write(audit.Entry{
		EventType:   audit.EventSessionCreated,
		SessionPath: newPath,
		ActionTaken: "new_session_forced",
		Outcome:     audit.OutcomeSuccess,
	})
	d.currentPath = newPath
	d.store.Mutate(func(s *statestore.State) { s.CurrentSession = newPath })

	req.reply <- cmdResp{sessionPath: newPath, message: "new session started"}
}

func (d *Daemon) snapshotStatus() Status {
	st := d.store.Get()
	return Status{
		State:            st.Phase,
		UptimeSeconds:    uptimeSince(d.startedAt),
		CurrentSession:   st.CurrentSession,
		Stats:            st.Stats,
		TimeSavedSeconds: st.Stats.TimeSavedSeconds,
		TimeSavedHuman:   st.TimeSavedHuman(),
	}
}
