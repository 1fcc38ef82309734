// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wingedpig/palingenesis/internal/config"
	"github.com/wingedpig/palingenesis/internal/logfilter"
	"github.com/wingedpig/palingenesis/internal/paths"
)

var (
	logsFollow bool
	logsTail   int
	logsSince  string
	logsLevel  string
	logsGrep   string
	logsFormat string
)

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "stream new log lines as they're written")
	logsCmd.Flags().IntVar(&logsTail, "tail", 100, "number of lines to show from the end of the log")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "only show lines newer than this (e.g. 1h, 30m, 6:30am, RFC3339)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "filter by level, e.g. warn,error or info+ (and above)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "only show lines whose message matches this regexp")
	logsCmd.Flags().StringVar(&logsFormat, "format", "plain", "output format: plain, json, jsonl, or csv")
	rootCmd.AddCommand(logsCmd)
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the daemon's structured log output",
	RunE:  runLogs,
}

func runLogs(cmd *cobra.Command, args []string) error {
	dirs, err := paths.Resolve()
	if err != nil {
		return internalErr(fmt.Errorf("resolve paths: %w", err))
	}
	cfg, err := config.NewLoader().LoadWithDefaults(dirs.ConfigFile())
	if err != nil {
		return userErr("load config: %w", err)
	}
	if cfg.Daemon.LogFile == "" {
		return userErr("no [daemon] log_file configured; the daemon is logging to stderr only")
	}

	opts, err := buildFilterOptions()
	if err != nil {
		return userErr("%w", err)
	}
	format, err := logfilter.ParseOutputFormat(logsFormat)
	if err != nil {
		return userErr("%w", err)
	}

	f, err := os.Open(cfg.Daemon.LogFile)
	if err != nil {
		return userErr("open %s: %w", cfg.Daemon.LogFile, err)
	}
	defer f.Close()

	entries, err := readTail(f, logsTail, opts)
	if err != nil {
		return internalErr(err)
	}

	out := logfilter.NewFormatter(os.Stdout, format)
	for _, e := range entries {
		if err := out.WriteEntry(&e); err != nil {
			return internalErr(err)
		}
	}

	if !logsFollow {
		return nil
	}
	return followFile(cmd.Context(), f, opts, out)
}

func buildFilterOptions() (logfilter.Options, error) {
	var opts logfilter.Options
	if logsSince != "" {
		since, err := logfilter.ParseSince(logsSince)
		if err != nil {
			return opts, fmt.Errorf("invalid --since: %w", err)
		}
		opts.Since = since
	}
	if logsLevel != "" {
		levels, minLevel, err := logfilter.ParseLevelFilter(logsLevel)
		if err != nil {
			return opts, fmt.Errorf("invalid --level: %w", err)
		}
		opts.Levels, opts.MinLevel = levels, minLevel
	} else {
		opts.MinLevel = logfilter.LevelUnset
	}
	opts.GrepPattern = logsGrep
	return opts, nil
}

// readTail reads every line, applies opts, and keeps the last n entries
// that pass the filter.
func readTail(r io.Reader, n int, opts logfilter.Options) ([]logfilter.Entry, error) {
	var all []logfilter.Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		all = append(all, logfilter.ParseLine(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	filtered, err := logfilter.FilterEntries(all, opts)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(filtered) > n {
		filtered = filtered[len(filtered)-n:]
	}
	return filtered, nil
}

// followFile polls for appended lines until ctx is cancelled, the way
// `tail -f` does without relying on inotify (the log file is local and
// append-only, so polling is cheap and avoids a second fsnotify watch
// alongside internal/watcher's session-file one).
func followFile(ctx interface{ Done() <-chan struct{} }, f *os.File, opts logfilter.Options, out *logfilter.Formatter) error {
	filter, err := logfilter.NewFilter(opts)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(f)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				line, err := reader.ReadString('\n')
				if line != "" {
					entry := logfilter.ParseLine(trimNewline(line))
					if filter.Match(&entry) {
						out.WriteEntry(&entry)
					}
				}
				if err != nil {
					break
				}
			}
		}
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
