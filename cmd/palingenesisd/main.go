// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command palingenesisd is the daemon entrypoint: it resolves the
// filesystem layout, acquires the single-instance lock, loads and
// validates configuration, wires every subsystem into a daemon.Daemon,
// and serves the control socket (and, if enabled, HTTP) until SIGTERM/
// SIGINT, reloading on SIGHUP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/wingedpig/palingenesis/internal/api"
	"github.com/wingedpig/palingenesis/internal/audit"
	"github.com/wingedpig/palingenesis/internal/backoff"
	"github.com/wingedpig/palingenesis/internal/classifier"
	"github.com/wingedpig/palingenesis/internal/config"
	"github.com/wingedpig/palingenesis/internal/daemon"
	"github.com/wingedpig/palingenesis/internal/dispatcher"
	"github.com/wingedpig/palingenesis/internal/events"
	"github.com/wingedpig/palingenesis/internal/logging"
	"github.com/wingedpig/palingenesis/internal/paths"
	"github.com/wingedpig/palingenesis/internal/pidlock"
	"github.com/wingedpig/palingenesis/internal/procmon"
	"github.com/wingedpig/palingenesis/internal/rpcsocket"
	"github.com/wingedpig/palingenesis/internal/sessionparser"
	"github.com/wingedpig/palingenesis/internal/shutdown"
	"github.com/wingedpig/palingenesis/internal/statestore"
	"github.com/wingedpig/palingenesis/internal/strategy"
	"github.com/wingedpig/palingenesis/internal/subordinate"
	"github.com/wingedpig/palingenesis/internal/watcher"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml (default: resolved config dir)")
	foreground := flag.Bool("foreground", false, "log to stderr in human-readable console form instead of JSON lines (ignored when log_file is set)")
	flag.Parse()

	if err := run(*configPath, *foreground); err != nil {
		fmt.Fprintln(os.Stderr, "palingenesisd:", err)
		os.Exit(1)
	}
}

func run(configPath string, foreground bool) error {
	dirs, err := paths.Resolve()
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}
	if configPath == "" {
		configPath = dirs.ConfigFile()
	}

	loader := config.NewLoader()
	cfg, err := loader.LoadWithDefaults(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logging.New(cfg.Daemon.LogLevel, cfg.Daemon.LogFile, foreground)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}

	pidFile := cfg.Daemon.PIDFile
	if pidFile == "" {
		pidFile = dirs.PIDFile()
	}
	lock, stale, err := pidlock.Acquire(pidFile)
	if err != nil {
		return fmt.Errorf("acquire pid lock: %w", err)
	}
	defer lock.Release()
	if stale {
		log.Warn().Msg("recovered from a stale pid file left by a crashed instance")
	}

	holder := config.NewHolder(cfg)

	store, err := statestore.Open(dirs.StateFile(), log)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}

	auditLog, err := audit.Open(dirs.AuditFile(), audit.Config{})
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer auditLog.Close()

	bus := events.NewMemoryEventBus(events.MemoryBusConfig{})
	defer bus.Close()

	d, coord, err := buildDaemon(cfg, holder, log, store, auditLog, bus, dirs)
	if err != nil {
		return err
	}

	reload := func() (*config.Config, error) {
		return loader.LoadWithDefaults(configPath)
	}

	socketFile := dirs.SocketFile()
	rpc := rpcsocket.New(socketFile, d, reload, log)
	coord.Register("rpcsocket", func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() { errCh <- rpc.Run(ctx) }()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return <-errCh
		}
	})

	var httpSrv *api.Server
	if cfg.Daemon.HTTPEnabled {
		httpSrv = api.NewServer(api.ServerConfig{
			Host: cfg.Daemon.HTTPBind,
			Port: cfg.Daemon.HTTPPort,
		}, api.Dependencies{
			Control: d,
			Reload:  reload,
			Bus:     bus,
			Log:     log,
		})
		coord.Register("http", func(ctx context.Context) error {
			errCh := make(chan error, 1)
			go func() { errCh <- httpSrv.ListenAndServe() }()
			select {
			case <-ctx.Done():
				return httpSrv.Shutdown(context.Background())
			case err := <-errCh:
				return err
			}
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- d.Run(coord.Context()) }()

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				next, err := reload()
				if err != nil {
					log.Error().Err(err).Msg("SIGHUP reload failed: invalid config")
					continue
				}
				if err := d.Reload(next); err != nil {
					log.Error().Err(err).Msg("SIGHUP reload rejected")
				} else {
					log.Info().Msg("configuration reloaded via SIGHUP")
				}
			default:
				log.Info().Str("signal", sig.String()).Msg("shutting down")
				report := coord.Shutdown(shutdown.DefaultTimeout)
				for _, name := range report.TimedOutTasks {
					log.Warn().Str("task", name).Msg("task did not shut down before the timeout")
				}
				for name, taskErr := range report.Errors {
					log.Warn().Str("task", name).Err(taskErr).Msg("task reported an error during shutdown")
				}
				<-runErrCh
				return nil
			}

		case err := <-runErrCh:
			return err
		}
	}
}

// buildDaemon wires the monitoring subsystems (watcher, process
// monitor, optional subordinate supervisor), the resume strategies,
// and the dispatcher into a daemon.Daemon, registering the
// long-running pieces with a shutdown coordinator.
func buildDaemon(
	cfg *config.Config,
	holder *config.Holder,
	log zerolog.Logger,
	store *statestore.Store,
	auditLog *audit.Log,
	bus events.EventBus,
	dirs paths.Dirs,
) (*daemon.Daemon, *shutdown.Coordinator, error) {
	coord := shutdown.New(context.Background())

	sessionDir := cfg.Monitoring.SessionDir
	if sessionDir == "" {
		sessionDir = "."
	}
	debounce := time.Duration(cfg.Monitoring.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	w, err := watcher.New([]string{sessionDir}, watcher.PatternMatcher([]string{"*.md"}), debounce)
	if err != nil {
		return nil, nil, fmt.Errorf("start watcher: %w", err)
	}
	coord.Register("watcher", func(ctx context.Context) error {
		<-ctx.Done()
		return w.Close()
	})

	var assistant string
	if len(cfg.Monitoring.Assistants) > 0 {
		assistant = cfg.Monitoring.Assistants[0]
	}
	proc := procmon.New(assistant, time.Second)
	coord.Register("procmon", func(ctx context.Context) error {
		proc.Run(ctx)
		return nil
	})

	engine, err := backoff.New(backoff.Config{
		BaseDelay:      time.Duration(cfg.Resume.BaseDelaySecs) * time.Second,
		MaxDelay:       time.Duration(cfg.Resume.MaxDelaySecs) * time.Second,
		MaxRetries:     cfg.Resume.MaxRetries,
		JitterEnabled:  cfg.Resume.Jitter,
		JitterFraction: 0.2,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build backoff engine: %w", err)
	}

	sameSession := strategy.NewSameSession(engine, float64(cfg.Metrics.ManualRestartTimeSeconds))
	newSession := strategy.NewNewSession(strategy.NewSessionConfig{
		EnableBackup: cfg.Resume.BackupCount > 0,
		BackupDir:    dirs.BackupsDir(),
	})
	disp := dispatcher.New(sameSession, newSession, false)

	var sub *subordinate.Supervisor
	if cfg.Subordinate.Enabled {
		subBackoff := backoff.Config{
			BaseDelay:      time.Duration(cfg.Subordinate.RestartDelayMs) * time.Millisecond,
			MaxDelay:       time.Duration(cfg.Subordinate.RestartDelayMs*10) * time.Millisecond,
			MaxRetries:     cfg.Subordinate.MaxRestartAttempts,
			JitterEnabled:  true,
			JitterFraction: 0.2,
		}
		subEngine, err := backoff.New(subBackoff)
		if err != nil {
			return nil, nil, fmt.Errorf("build subordinate backoff engine: %w", err)
		}
		sub = subordinate.New(subordinate.Config{
			Command:             splitCommand(cfg.Subordinate.ServeCommand),
			AutoRestart:         cfg.Subordinate.AutoRestart,
			RestartOnNormalExit: cfg.Subordinate.RestartOnNormalExit,
			RestartDelay:        time.Duration(cfg.Subordinate.RestartDelayMs) * time.Millisecond,
			Backoff:             subBackoff,
			PollInterval:        time.Duration(cfg.Subordinate.PollIntervalMs) * time.Millisecond,
		}, subEngine)
		coord.Register("subordinate", func(ctx context.Context) error {
			return sub.Run(ctx)
		})
	}

	d := daemon.New(daemon.Deps{
		Config:      holder,
		Log:         log,
		Store:       store,
		Audit:       auditLog,
		Bus:         bus,
		Watcher:     w,
		ProcMon:     proc,
		Subordinate: sub,
		Dispatch:    disp,
		ParseOptions: sessionparser.Options{
			TailLines: 100,
		},
		ClassifyCfg: classifier.Config{
			ContextExhaustedFraction: 0.80,
			DefaultRetryAfter:        time.Minute,
		},
		BackupDir: dirs.BackupsDir(),
	})

	return d, coord, nil
}

// splitCommand turns a configured shell-style command string into argv
// form for subordinate.Config.Command. It does not handle quoting; the
// serve command is expected to be a simple space-separated invocation.
func splitCommand(cmd string) []string {
	return strings.Fields(cmd)
}
