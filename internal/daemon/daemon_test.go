// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/palingenesis/internal/audit"
	"github.com/wingedpig/palingenesis/internal/classifier"
	"github.com/wingedpig/palingenesis/internal/config"
	"github.com/wingedpig/palingenesis/internal/dispatcher"
	"github.com/wingedpig/palingenesis/internal/events"
	"github.com/wingedpig/palingenesis/internal/procmon"
	"github.com/wingedpig/palingenesis/internal/sessionparser"
	"github.com/wingedpig/palingenesis/internal/statestore"
	"github.com/wingedpig/palingenesis/internal/strategy"
	"github.com/wingedpig/palingenesis/internal/watcher"
)

// fakeStrategy lets tests control exactly what a dispatched strategy
// returns, without going through a real subprocess or backoff sleep.
type fakeStrategy struct {
	name     string
	outcomes []strategy.Outcome
	calls    int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Execute(ctx strategy.ResumeContext, caps strategy.Capabilities, sub strategy.Subordinate, cancel <-chan struct{}) strategy.Outcome {
	i := f.calls
	if i >= len(f.outcomes) {
		i = len(f.outcomes) - 1
	}
	f.calls++
	return f.outcomes[i]
}

func (f *fakeStrategy) ShouldRetry(o strategy.Outcome) bool { return false }

func newTestDaemon(t *testing.T, same, newSess strategy.Strategy) *Daemon {
	t.Helper()
	dir := t.TempDir()

	store, err := statestore.Open(filepath.Join(dir, "state.json"), zerolog.Nop())
	require.NoError(t, err)

	log, err := audit.Open(filepath.Join(dir, "audit.log"), audit.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	bus := events.NewMemoryEventBus(events.MemoryBusConfig{})
	t.Cleanup(func() { bus.Close() })

	holder := config.NewHolder(&config.Config{})
	disp := dispatcher.New(same, newSess, false)

	d := New(Deps{
		Config:       holder,
		Log:          zerolog.Nop(),
		Store:        store,
		Audit:        log,
		Bus:          bus,
		Dispatch:     disp,
		ParseOptions: sessionparser.Options{},
		ClassifyCfg:  classifier.Config{},
		BackupDir:    filepath.Join(dir, "backups"),
	})
	return d
}

func writeSessionFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "session.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestHandleWatchEventCachesSession(t *testing.T) {
	d := newTestDaemon(t, nil, nil)
	path := writeSessionFile(t, "---\nstatus: in_progress\n---\nsome tail text\n")

	d.handleWatchEvent(watcher.Event{Path: path, Kind: watcher.Modified})

	require.Equal(t, path, d.currentPath)
	session, ok := d.sessionCache[path]
	require.True(t, ok)
	require.Equal(t, "in_progress", session.Frontmatter.Status)
}

func TestHandleWatchEventRemovedClearsCache(t *testing.T) {
	d := newTestDaemon(t, nil, nil)
	path := writeSessionFile(t, "---\nstatus: in_progress\n---\n")
	d.handleWatchEvent(watcher.Event{Path: path, Kind: watcher.Modified})
	require.Equal(t, path, d.currentPath)

	d.handleWatchEvent(watcher.Event{Path: path, Kind: watcher.Removed})

	require.Empty(t, d.currentPath)
	_, ok := d.sessionCache[path]
	require.False(t, ok)
}

func TestOnAssistantStoppedNoTrackedSessionIsNoop(t *testing.T) {
	d := newTestDaemon(t, nil, nil)
	before := d.store.Get().Phase

	d.onAssistantStopped(procmon.ProcessStopped{PID: 123})

	require.Equal(t, before, d.store.Get().Phase)
}

func TestOnAssistantStoppedWhilePausedIsIgnored(t *testing.T) {
	same := &fakeStrategy{name: "same_session", outcomes: []strategy.Outcome{strategy.Success("x", "resumed")}}
	d := newTestDaemon(t, same, nil)
	path := writeSessionFile(t, "---\n---\nhit rate limit, try again in 30s\n")
	d.handleWatchEvent(watcher.Event{Path: path, Kind: watcher.Modified})
	require.NoError(t, d.store.Mutate(func(s *statestore.State) { s.Phase = statestore.PhasePaused }))

	d.onAssistantStopped(procmon.ProcessStopped{PID: 1})

	require.Equal(t, 0, same.calls)
	require.Equal(t, statestore.PhasePaused, d.store.Get().Phase)
}

func TestOnAssistantStoppedDispatchesAndSucceeds(t *testing.T) {
	same := &fakeStrategy{name: "same_session", outcomes: []strategy.Outcome{strategy.Success("resumed-path", "continued")}}
	d := newTestDaemon(t, same, nil)
	path := writeSessionFile(t, "---\n---\nhit rate limit, try again in 30s\n")
	d.handleWatchEvent(watcher.Event{Path: path, Kind: watcher.Modified})

	d.onAssistantStopped(procmon.ProcessStopped{PID: 1})
	require.Equal(t, statestore.PhaseResuming, d.store.Get().Phase)

	select {
	case r := <-d.resultCh:
		d.handleResult(r)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for strategy result")
	}

	require.Equal(t, 1, same.calls)
	require.Equal(t, statestore.PhaseMonitoring, d.store.Get().Phase)
	require.Equal(t, "resumed-path", d.currentPath)
}

func TestOnAssistantStoppedNoStrategyForUserExit(t *testing.T) {
	d := newTestDaemon(t, nil, nil)
	path := writeSessionFile(t, "---\n---\nuser pressed ctrl-c\n")
	d.handleWatchEvent(watcher.Event{Path: path, Kind: watcher.Modified})
	code := 130
	before := d.store.Get().Phase

	d.onAssistantStopped(procmon.ProcessStopped{PID: 1, ExitCode: &code})

	require.Equal(t, before, d.store.Get().Phase)
}

func TestHandleResultDelayedSchedulesWait(t *testing.T) {
	same := &fakeStrategy{name: "same_session"}
	d := newTestDaemon(t, same, nil)
	d.currentPath = "session.md"

	d.handleResult(result{
		outcome: strategy.Delayed(50*time.Millisecond, "rate limited"),
		reason:  classifier.RateLimit,
		ctx:     strategy.ResumeContext{SessionPath: "session.md"},
	})

	require.Equal(t, statestore.PhaseWaiting, d.store.Get().Phase)
	require.NotNil(t, d.pendingResume)
	require.Equal(t, "session.md", d.pendingResume.path)
}

func TestHandleResultNonRetryableFailureWritesCrashSnapshot(t *testing.T) {
	same := &fakeStrategy{name: "same_session"}
	d := newTestDaemon(t, same, nil)
	path := writeSessionFile(t, "---\n---\nHTTP 429 Too Many Requests\nRetry-After: 42\n")
	d.handleWatchEvent(watcher.Event{Path: path, Kind: watcher.Modified})
	d.resumeHistory = []strategy.ResumeContext{
		{SessionPath: path, StopReason: classifier.RateLimit, AttemptNumber: 1},
	}

	d.handleResult(result{
		outcome: strategy.Failure(false, "resume failed after 1 attempts: rate limited"),
		reason:  classifier.RateLimit,
		ctx:     strategy.ResumeContext{SessionPath: path, AttemptNumber: 1},
	})

	des, err := os.ReadDir(d.backupDir)
	require.NoError(t, err)
	require.Len(t, des, 1)
	require.Contains(t, des[0].Name(), ".crash.json")
}

func TestHandleResultRetryableFailureWritesNoCrashSnapshot(t *testing.T) {
	same := &fakeStrategy{name: "same_session"}
	d := newTestDaemon(t, same, nil)
	path := writeSessionFile(t, "---\n---\nsome tail\n")
	d.handleWatchEvent(watcher.Event{Path: path, Kind: watcher.Modified})

	d.handleResult(result{
		outcome: strategy.Failure(true, "will retry"),
		reason:  classifier.RateLimit,
		ctx:     strategy.ResumeContext{SessionPath: path, AttemptNumber: 1},
	})

	des, err := os.ReadDir(d.backupDir)
	if err == nil {
		require.Empty(t, des)
	} else {
		require.True(t, os.IsNotExist(err))
	}
}

func TestFireWaitReinvokesStrategyAndIncrementsAttempt(t *testing.T) {
	same := &fakeStrategy{outcomes: []strategy.Outcome{strategy.Success("session.md", "continued")}}
	d := newTestDaemon(t, same, nil)
	d.attempt = 1
	d.pendingResume = &pendingResume{path: "session.md", reason: classifier.RateLimit, strat: same}

	d.fireWait()

	require.Equal(t, 2, d.attempt)
	require.Nil(t, d.pendingResume)
	require.Equal(t, statestore.PhaseResuming, d.store.Get().Phase)

	select {
	case r := <-d.resultCh:
		require.Equal(t, strategy.OutcomeSuccess, r.outcome.Kind())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for strategy result")
	}
}

func TestFireWaitWithNoPendingResumeIsNoop(t *testing.T) {
	d := newTestDaemon(t, nil, nil)

	d.fireWait()

	require.Nil(t, d.pendingResume)
}

func runDaemon(t *testing.T, d *Daemon) (cancel func()) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, d.Run(ctx))
	}()
	t.Cleanup(func() {
		cancelFn()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("daemon did not shut down")
		}
	})
	return cancelFn
}

func TestPauseThenPauseAgainIsAlreadyError(t *testing.T) {
	d := newTestDaemon(t, nil, nil)
	runDaemon(t, d)

	require.NoError(t, d.Pause())

	err := d.Pause()
	require.Error(t, err)
	var already *AlreadyError
	require.ErrorAs(t, err, &already)
}

func TestResumeWithoutPauseIsAlreadyError(t *testing.T) {
	d := newTestDaemon(t, nil, nil)
	runDaemon(t, d)

	err := d.Resume(false)
	require.Error(t, err)
	var already *AlreadyError
	require.ErrorAs(t, err, &already)
}

func TestPauseResumeRoundTrip(t *testing.T) {
	d := newTestDaemon(t, nil, nil)
	runDaemon(t, d)

	require.NoError(t, d.Pause())
	st, err := d.Status()
	require.NoError(t, err)
	require.Equal(t, statestore.PhasePaused, st.State)

	require.NoError(t, d.Resume(false))
	st, err = d.Status()
	require.NoError(t, err)
	require.Equal(t, statestore.PhaseMonitoring, st.State)
}

func TestNewSessionNowWithNoActiveSessionReturnsNotFound(t *testing.T) {
	d := newTestDaemon(t, nil, nil)
	runDaemon(t, d)

	_, err := d.NewSessionNow("continue please", true)
	require.Error(t, err)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestStatusReportsMonitoringPhaseAndNonNegativeUptime(t *testing.T) {
	d := newTestDaemon(t, nil, nil)
	runDaemon(t, d)

	st, err := d.Status()
	require.NoError(t, err)
	require.Equal(t, statestore.PhaseMonitoring, st.State)
	require.GreaterOrEqual(t, st.UptimeSeconds, 0.0)
}

func TestReloadAppliesNewConfig(t *testing.T) {
	d := newTestDaemon(t, nil, nil)
	runDaemon(t, d)

	next := config.Default()
	next.Daemon.LogLevel = "debug"
	require.NoError(t, d.Reload(next))
	require.Equal(t, "debug", d.cfg.Get().Daemon.LogLevel)
}

func TestSendAfterShutdownReturnsErrShuttingDown(t *testing.T) {
	d := newTestDaemon(t, nil, nil)
	cancel := runDaemon(t, d)
	cancel()

	select {
	case <-d.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("daemon never stopped")
	}

	err := d.Pause()
	require.ErrorIs(t, err, ErrShuttingDown)
}
