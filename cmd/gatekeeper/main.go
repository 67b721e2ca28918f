// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for Gatekeeper.
//
// Usage:
//
//	go run ./cmd/gatekeeper [command] [flags]
//	./gatekeeper [command] [flags]
//
// See --help for the available commands.
package main

import (
	"os"

	"github.com/toeirei/gatekeeper/ui/cli"
)

func main() {
	// Cobra has already printed the error.
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
