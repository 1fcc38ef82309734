// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package sessionparser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultTailLines = 100
	frontmatterFence = "---"
)

// Options controls Parse's cost bounds.
type Options struct {
	// TailLines is the maximum number of trailing lines read. 0
	// selects the default of 100.
	TailLines int
}

// Parse reads path and extracts its frontmatter block (if any) and
// tail text. The only errors returned are *Error{NotFound} and
// *Error{Io}; anything else (malformed frontmatter, invalid UTF-8)
// degrades into a Session with empty/partial Frontmatter rather than
// failing the call.
func Parse(path string, opts Options) (Session, error) {
	n := opts.TailLines
	if n <= 0 {
		n = defaultTailLines
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, &Error{Kind: NotFound, Path: path, Err: err}
		}
		return Session{}, &Error{Kind: Io, Path: path, Err: err}
	}

	f, err := os.Open(path)
	if err != nil {
		return Session{}, &Error{Kind: Io, Path: path, Err: err}
	}
	defer f.Close()

	fm, body, err := readFrontmatter(f)
	if err != nil {
		return Session{}, &Error{Kind: Io, Path: path, Err: err}
	}

	tail, err := tailLines(body, n)
	if err != nil {
		return Session{}, &Error{Kind: Io, Path: path, Err: err}
	}

	return Session{
		Path:         path,
		Frontmatter:  fm,
		TailText:     tail,
		LastModified: info.ModTime(),
	}, nil
}

// readFrontmatter consumes a leading fenced block (--- ... ---) from r
// if present, parsing it as YAML, and returns the remaining reader
// positioned at the body. A malformed or absent frontmatter block
// simply yields an empty Frontmatter; the whole file is then treated
// as body.
func readFrontmatter(f *os.File) (Frontmatter, io.Reader, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return Frontmatter{}, nil, err
	}

	if !bytes.HasPrefix(bytes.TrimLeft(data, "\r\n"), []byte(frontmatterFence)) {
		return Frontmatter{}, bytes.NewReader(data), nil
	}

	trimmed := bytes.TrimLeft(data, "\r\n")
	rest := trimmed[len(frontmatterFence):]
	rest = bytes.TrimPrefix(rest, []byte("\n"))
	rest = bytes.TrimPrefix(rest, []byte("\r\n"))

	end := bytes.Index(rest, []byte("\n"+frontmatterFence))
	if end < 0 {
		// No closing fence: treat the whole thing as body rather than
		// erroring, per the lossy-decoding contract.
		return Frontmatter{}, bytes.NewReader(data), nil
	}

	block := rest[:end]
	bodyStart := end + len("\n"+frontmatterFence)
	body := rest[bodyStart:]
	body = bytes.TrimPrefix(body, []byte("\n"))
	body = bytes.TrimPrefix(body, []byte("\r\n"))

	return parseFrontmatterYAML(block), bytes.NewReader(body), nil
}

func parseFrontmatterYAML(block []byte) Frontmatter {
	var raw map[string]any
	if err := yaml.Unmarshal(block, &raw); err != nil {
		// Malformed frontmatter yields empty fields, never an error.
		return Frontmatter{}
	}

	fm := Frontmatter{Extra: make(map[string]string)}
	for k, v := range raw {
		switch k {
		case "status":
			fm.Status, _ = v.(string)
		case "model":
			fm.Model, _ = v.(string)
		case "total_steps", "total-steps":
			fm.TotalSteps = toInt(v)
		case "completed_steps", "completed-steps":
			fm.CompletedSteps = toIntSlice(v)
		default:
			fm.Extra[k] = fmt.Sprintf("%v", v)
		}
	}
	return fm
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func toIntSlice(v any) []int {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		out = append(out, toInt(item))
	}
	return out
}

// tailLines reads r and returns at most the last n lines, joined by
// "\n".
func tailLines(r io.Reader, n int) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	text := string(data)
	if text == "" {
		return "", nil
	}
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return "", nil
	}

	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n"), nil
}
