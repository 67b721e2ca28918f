// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"sync/atomic"

	"github.com/toeirei/gatekeeper/internal/logging"
)

// verbose gates the open and migration timing lines.
var verbose atomic.Bool

// SetDebug turns store diagnostics on; they are off unless --debug is given.
func SetDebug(enabled bool) { verbose.Store(enabled) }

func dbLogf(format string, v ...any) {
	if verbose.Load() {
		logging.Debugf(format, v...)
	}
}
