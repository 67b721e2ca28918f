// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

// Package client gives account-facing tooling one API over a gatekeeper
// server, either in process through the core services or remotely through
// the HTTP API.
package client
