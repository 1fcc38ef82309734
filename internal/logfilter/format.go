// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package logfilter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Formatter writes entries to an io.Writer in one OutputFormat.
type Formatter struct {
	format OutputFormat
	writer io.Writer
	csv    *csv.Writer
	header bool
}

// NewFormatter returns a Formatter that writes to w in the given format.
func NewFormatter(w io.Writer, format OutputFormat) *Formatter {
	f := &Formatter{format: format, writer: w}
	if format == FormatCSV {
		f.csv = csv.NewWriter(w)
	}
	return f
}

// WriteEntry writes one entry. For FormatCSV it writes a header row
// before the first entry, inferred from that entry's Fields keys.
func (f *Formatter) WriteEntry(e *Entry) error {
	switch f.format {
	case FormatJSON, FormatJSONL:
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(f.writer, string(data))
		return err
	case FormatCSV:
		return f.writeCSV(e)
	default:
		_, err := fmt.Fprintf(f.writer, "%s %-5s %s\n",
			e.Timestamp.Format("2006-01-02T15:04:05"), e.Level, e.Message)
		return err
	}
}

func (f *Formatter) writeCSV(e *Entry) error {
	if !f.header {
		f.header = true
		if err := f.csv.Write([]string{"timestamp", "level", "message"}); err != nil {
			return err
		}
	}
	if err := f.csv.Write([]string{e.Timestamp.Format("2006-01-02T15:04:05"), e.Level, e.Message}); err != nil {
		return err
	}
	f.csv.Flush()
	return f.csv.Error()
}

// Stats summarizes a set of entries (used by `logs --stats`).
type Stats struct {
	TotalEntries int
	LevelCounts  map[string]int
	TopMessages  []MessageCount
}

// MessageCount is one message and how many times it recurred.
type MessageCount struct {
	Message string
	Count   int
}

// Summarize computes Stats over entries, keeping the top N most
// frequent messages.
func Summarize(entries []Entry, topN int) Stats {
	stats := Stats{TotalEntries: len(entries), LevelCounts: make(map[string]int)}
	counts := make(map[string]int)
	for _, e := range entries {
		level := strings.ToUpper(e.Level)
		if level == "" {
			level = "UNKNOWN"
		}
		stats.LevelCounts[level]++
		counts[e.Message]++
	}

	for msg, n := range counts {
		stats.TopMessages = append(stats.TopMessages, MessageCount{Message: msg, Count: n})
	}
	sort.Slice(stats.TopMessages, func(i, j int) bool {
		return stats.TopMessages[i].Count > stats.TopMessages[j].Count
	})
	if len(stats.TopMessages) > topN {
		stats.TopMessages = stats.TopMessages[:topN]
	}
	return stats
}
