// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

// Package db is the persistence backend for Gatekeeper.
//
// A single bun-backed Store serves SQLite (default), PostgreSQL and MySQL.
// Schema changes are plain SQL files embedded per dialect under migrations/
// and applied by RunMigrations when a store is opened.
//
// Key redemption is the only multi-statement write with invariants of its
// own. It runs inside one transaction that looks the key up (row-locked where
// the dialect supports it), refuses keys already present in key_redemptions,
// deletes the available row and requires exactly one affected row, then
// inserts the redemption under a UNIQUE(key_value) constraint. Any failure
// rolls the whole transaction back, including the account row created by a
// registration.
//
// Testing notes
//   - Prefer an in-memory SQLite DSN such as
//     "file:<name>?mode=memory&cache=shared" with NewStoreFromDSN; the
//     real migrations run against it.
package db
