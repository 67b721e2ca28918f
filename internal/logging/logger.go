// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

// Package logging holds the process logger shared by the CLI, the ledger and
// the HTTP API.
package logging

import (
	"fmt"
	"os"
	"strings"

	clog "github.com/charmbracelet/log"
)

// L writes timestamped lines to stderr so command output on stdout stays
// clean. Tests may replace it.
var L = clog.NewWithOptions(os.Stderr, clog.Options{ReportTimestamp: true})

// SetLevel applies a level from config or flags. Names are case-insensitive;
// anything clog does not know means info.
func SetLevel(name string) {
	lvl, err := clog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		lvl = clog.InfoLevel
	}
	L.SetLevel(lvl)
}

func Debugf(format string, v ...any) { L.Debug(fmt.Sprintf(format, v...)) }

func Infof(format string, v ...any) { L.Info(fmt.Sprintf(format, v...)) }

func Warnf(format string, v ...any) { L.Warn(fmt.Sprintf(format, v...)) }

func Errorf(format string, v ...any) { L.Error(fmt.Sprintf(format, v...)) }
