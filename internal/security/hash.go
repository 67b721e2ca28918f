// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// VerifierLength is the length of every verifier produced by Hash.
const VerifierLength = sha256.Size * 2

// Verifier is the stored, one-way form of a password.
type Verifier string

// Hash returns the lowercase hex SHA-256 digest of the secret.
func Hash(secret Secret) Verifier {
	sum := sha256.Sum256(secret)
	return Verifier(hex.EncodeToString(sum[:]))
}

// HashString is Hash for callers holding a plain string.
func HashString(secret string) Verifier {
	return Hash(FromString(secret))
}

// Matches compares two verifiers byte for byte. The comparison is
// case-sensitive: an uppercase rendering of the same digest does not match.
func (v Verifier) Matches(other Verifier) bool {
	if len(v) != len(other) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(v), []byte(other)) == 1
}

// Valid reports whether v has the shape of a verifier produced by Hash.
func (v Verifier) Valid() bool {
	if len(v) != VerifierLength {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func (v Verifier) String() string { return string(v) }
