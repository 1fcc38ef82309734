// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command palingenesis is the CLI client for a running palingenesisd
// daemon: daemon lifecycle, status, pause/resume, forcing a new
// session, log tailing, and config management.
package main

import (
	"os"

	"github.com/wingedpig/palingenesis/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
