// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package logfilter

import "regexp"

// Filter applies an Options set to a stream of entries.
type Filter struct {
	opts      Options
	grepRegex *regexp.Regexp
}

// NewFilter compiles opts.GrepPattern (if any) and returns a Filter.
func NewFilter(opts Options) (*Filter, error) {
	f := &Filter{opts: opts}
	if opts.GrepPattern != "" {
		re, err := regexp.Compile(opts.GrepPattern)
		if err != nil {
			return nil, err
		}
		f.grepRegex = re
	}
	return f, nil
}

// Match reports whether entry satisfies every configured criterion.
func (f *Filter) Match(entry *Entry) bool {
	if !f.opts.Since.IsZero() && entry.Timestamp.Before(f.opts.Since) {
		return false
	}
	if !f.opts.Until.IsZero() && entry.Timestamp.After(f.opts.Until) {
		return false
	}
	if !f.matchLevel(entry) {
		return false
	}
	return f.matchGrep(entry)
}

func (f *Filter) matchLevel(entry *Entry) bool {
	level := LevelOf(entry)
	if f.opts.MinLevel != LevelUnset {
		return level >= f.opts.MinLevel && level != LevelUnknown
	}
	if len(f.opts.Levels) == 0 {
		return true
	}
	for _, l := range f.opts.Levels {
		if level == l {
			return true
		}
	}
	return false
}

func (f *Filter) matchGrep(entry *Entry) bool {
	if f.grepRegex == nil {
		return true
	}
	return f.grepRegex.MatchString(entry.Message) || f.grepRegex.MatchString(entry.Raw)
}

// FilterEntries filters entries against opts. When opts.Before/After is
// nonzero and a grep pattern is set, entries around each match are kept
// too (like grep -A/-B), applied after time and level filtering.
func FilterEntries(entries []Entry, opts Options) ([]Entry, error) {
	filter, err := NewFilter(opts)
	if err != nil {
		return nil, err
	}

	if opts.Before == 0 && opts.After == 0 {
		var result []Entry
		for _, e := range entries {
			if filter.Match(&e) {
				result = append(result, e)
			}
		}
		return result, nil
	}

	baseOpts := opts
	baseOpts.GrepPattern = ""
	baseFilter, err := NewFilter(baseOpts)
	if err != nil {
		return nil, err
	}

	var base []Entry
	for _, e := range entries {
		if baseFilter.Match(&e) {
			base = append(base, e)
		}
	}
	if opts.GrepPattern == "" {
		return base, nil
	}

	var matchIdx []int
	for i, e := range base {
		if filter.matchGrep(&e) {
			matchIdx = append(matchIdx, i)
		}
	}
	if len(matchIdx) == 0 {
		return nil, nil
	}

	include := make(map[int]bool)
	for _, idx := range matchIdx {
		start := idx - opts.Before
		if start < 0 {
			start = 0
		}
		end := idx + opts.After
		if end >= len(base) {
			end = len(base) - 1
		}
		for i := start; i <= end; i++ {
			include[i] = true
		}
	}

	var result []Entry
	for i, e := range base {
		if include[i] {
			result = append(result, e)
		}
	}
	return result, nil
}
