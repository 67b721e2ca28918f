// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

// Package cli implements the gatekeeper command line: account login,
// registration and redemption for users, product and key pool management for
// operators, and the HTTP server.
package cli
