// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

// Package security holds the plaintext-secret wrapper used on the login and
// registration paths and the credential hasher that turns a secret into the
// verifier stored with each account.
//
// Verifiers are unsalted SHA-256 digests rendered as lowercase hex. Existing
// accounts were created with that exact format, so changing it would lock
// every user out; the weakness is known and kept on purpose.
package security
