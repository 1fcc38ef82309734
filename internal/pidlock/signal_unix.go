// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package pidlock

import "syscall"

// processProbeSignal is sent to check liveness without affecting the
// target process (signal 0 performs existence/permission checks only).
const processProbeSignal = syscall.Signal(0)
