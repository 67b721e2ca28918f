// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package security

import (
	"encoding/json"
	"fmt"
	"io"
)

// Secret carries a plaintext password from the prompt or request body to
// the hasher. Every printing and encoding path shows a placeholder instead.
type Secret []byte

const redacted = "[SECRET]"

func FromString(in string) Secret { return Secret(in) }

// FromBytes copies in, so zeroing the Secret leaves the source untouched.
func FromBytes(in []byte) Secret { return append(Secret(nil), in...) }

func (s Secret) String() string { return redacted }

// Format covers %v, %q, %x and the rest.
func (s Secret) Format(f fmt.State, _ rune) { _, _ = io.WriteString(f, redacted) }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(redacted) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

func (s Secret) Empty() bool { return len(s) == 0 }

// Equal compares a password with its confirmation.
func (s Secret) Equal(other Secret) bool { return string(s) == string(other) }

// Zero wipes the password once it has been hashed or sent.
func (s *Secret) Zero() {
	if s == nil {
		return
	}
	clear(*s)
}
