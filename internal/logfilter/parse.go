// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package logfilter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativeRe = regexp.MustCompile(`^(\d+)([smhdw])$`)

// ParseSince parses the --since flag: a relative duration ("1h", "30m",
// "2d", "1w"), a clock time on today's date ("6:30am", "14:00"), or an
// ISO-ish timestamp. zerolog writes RFC3339 timestamps, so that format
// is tried first.
func ParseSince(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, ok := parseClockTime(s); ok {
		return t, nil
	}

	matches := relativeRe.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("invalid time format: %q (use e.g. 1h, 30m, 6:30am, or an RFC3339 timestamp)", s)
	}

	value, _ := strconv.Atoi(matches[1])
	var d time.Duration
	switch matches[2] {
	case "s":
		d = time.Duration(value) * time.Second
	case "m":
		d = time.Duration(value) * time.Minute
	case "h":
		d = time.Duration(value) * time.Hour
	case "d":
		d = time.Duration(value) * 24 * time.Hour
	case "w":
		d = time.Duration(value) * 7 * 24 * time.Hour
	}
	return time.Now().Add(-d), nil
}

func parseClockTime(s string) (time.Time, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if matches := regexp.MustCompile(`^(\d{1,2}):(\d{2})(am|pm)$`).FindStringSubmatch(s); matches != nil {
		hour, _ := strconv.Atoi(matches[1])
		minute, _ := strconv.Atoi(matches[2])
		if hour < 1 || hour > 12 || minute < 0 || minute > 59 {
			return time.Time{}, false
		}
		if matches[3] == "am" {
			if hour == 12 {
				hour = 0
			}
		} else if hour != 12 {
			hour += 12
		}
		return today.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), true
	}

	if matches := regexp.MustCompile(`^(\d{1,2}):(\d{2})$`).FindStringSubmatch(s); matches != nil {
		hour, _ := strconv.Atoi(matches[1])
		minute, _ := strconv.Atoi(matches[2])
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return time.Time{}, false
		}
		return today.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), true
	}

	return time.Time{}, false
}

// ParseLevel parses a level name, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR", "ERR":
		return LevelError, nil
	case "FATAL", "PANIC":
		return LevelFatal, nil
	default:
		return LevelUnknown, fmt.Errorf("unknown log level: %q", s)
	}
}

// ParseLevelFilter parses the --level flag: "error", "warn,error", or
// "info+" (info and above).
func ParseLevelFilter(s string) (levels []Level, minLevel Level, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, LevelUnset, nil
	}
	if strings.HasSuffix(s, "+") {
		level, err := ParseLevel(strings.TrimSuffix(s, "+"))
		if err != nil {
			return nil, LevelUnset, err
		}
		return nil, level, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		level, err := ParseLevel(part)
		if err != nil {
			return nil, LevelUnset, err
		}
		levels = append(levels, level)
	}
	return levels, LevelUnset, nil
}

// ParseOutputFormat parses the --format flag.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "plain", "text":
		return FormatPlain, nil
	case "json":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "csv":
		return FormatCSV, nil
	default:
		return FormatPlain, fmt.Errorf("unknown output format: %q", s)
	}
}

// ParseLine parses one line of the daemon's JSON-lines log. Lines that
// don't decode as JSON (a stray panic dump, a line written mid-write)
// fall back to Entry.Raw/Message so callers never error on them.
func ParseLine(line string) Entry {
	entry := Entry{Raw: line}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		entry.Message = line
		return entry
	}

	entry.Fields = fields
	if ts, ok := fields["time"]; ok {
		entry.Timestamp = parseTimestamp(ts)
		delete(entry.Fields, "time")
	}
	if lvl, ok := fields["level"]; ok {
		entry.Level = fmt.Sprintf("%v", lvl)
		delete(entry.Fields, "level")
	}
	if msg, ok := fields["message"]; ok {
		entry.Message = fmt.Sprintf("%v", msg)
		delete(entry.Fields, "message")
	} else {
		entry.Message = line
	}
	return entry
}

func parseTimestamp(v interface{}) time.Time {
	switch ts := v.(type) {
	case string:
		for _, format := range []string{time.RFC3339, time.RFC3339Nano} {
			if t, err := time.Parse(format, ts); err == nil {
				return t
			}
		}
	case float64:
		if ts > 1e12 {
			return time.UnixMilli(int64(ts))
		}
		return time.Unix(int64(ts), 0)
	}
	return time.Time{}
}

// LevelOf returns the parsed Level for an entry, LevelUnknown if its
// Level field isn't one of the recognized names.
func LevelOf(e *Entry) Level {
	level, err := ParseLevel(e.Level)
	if err != nil {
		return LevelUnknown
	}
	return level
}
