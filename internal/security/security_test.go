// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package security

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestHash_Deterministic(t *testing.T) {
	a := HashString("secret")
	b := HashString("secret")
	if a != b {
		t.Fatalf("expected identical verifiers, got %q and %q", a, b)
	}
	if !a.Matches(b) {
		t.Fatalf("expected verifiers to match")
	}
}

func TestHash_CaseSensitive(t *testing.T) {
	if HashString("secret") == HashString("Secret") {
		t.Fatalf("hash must distinguish case")
	}
}

func TestHash_KnownVector(t *testing.T) {
	// sha256("password")
	const want = "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8"
	if got := HashString("password"); string(got) != want {
		t.Fatalf("unexpected digest: got %s want %s", got, want)
	}
}

func TestVerifier_Shape(t *testing.T) {
	v := HashString("x")
	if len(v) != VerifierLength {
		t.Fatalf("expected %d chars, got %d", VerifierLength, len(v))
	}
	if !v.Valid() {
		t.Fatalf("expected %q to be valid", v)
	}
	if Verifier(strings.ToUpper(string(v))).Valid() {
		t.Fatalf("uppercase verifier must not be valid")
	}
}

func TestVerifier_MatchesIsByteExact(t *testing.T) {
	v := HashString("hunter2")
	upper := Verifier(strings.ToUpper(string(v)))
	if v.Matches(upper) {
		t.Fatalf("uppercase rendering must not match")
	}
	if v.Matches(v[:10]) {
		t.Fatalf("prefix must not match")
	}
	if v.Matches("") {
		t.Fatalf("empty verifier must not match")
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := FromString("supersecret")
	for _, verb := range []string{"%v", "%s", "%#v", "%q"} {
		if out := fmt.Sprintf(verb, s); out != "[SECRET]" {
			t.Fatalf("verb %s leaked: %q", verb, out)
		}
	}
	b, err := json.Marshal(struct{ P Secret }{P: s})
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}
	if strings.Contains(string(b), "supersecret") {
		t.Fatalf("json leaked secret: %s", b)
	}
}

func TestSecret_ZeroAndEqual(t *testing.T) {
	a := FromString("abc")
	b := FromBytes([]byte("abc"))
	if !a.Equal(b) {
		t.Fatalf("expected equal secrets")
	}
	(&a).Zero()
	for i, c := range a {
		if c != 0 {
			t.Fatalf("byte %d not zeroed", i)
		}
	}
	if a.Equal(b) {
		t.Fatalf("zeroed secret must differ")
	}
	var nilSecret *Secret
	nilSecret.Zero()
	if !Secret(nil).Empty() {
		t.Fatalf("nil secret should be empty")
	}
}
