// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import "path/filepath"

// PatternMatcher builds a Matcher from shell glob patterns (as
// accepted by path/filepath.Match) applied to the base name of the
// path, e.g. "*.md". A path matching any pattern is accepted; an
// empty pattern list accepts everything.
func PatternMatcher(patterns []string) Matcher {
	if len(patterns) == 0 {
		return func(string) bool { return true }
	}

	return func(path string) bool {
		base := filepath.Base(path)
		for _, p := range patterns {
			if ok, err := filepath.Match(p, base); err == nil && ok {
				return true
			}
		}
		return false
	}
}
