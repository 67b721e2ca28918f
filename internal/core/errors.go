// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"errors"
	"fmt"
)

// Rejection reasons. They are always delivered wrapped in a *RejectedError.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrHardwareMismatch   = errors.New("hardware mismatch")
	ErrInvalidKey         = errors.New("invalid key")
	// ErrAlreadyRedeemed is a key consumed by a concurrent or earlier
	// transition. It matches ErrInvalidKey under errors.Is.
	ErrAlreadyRedeemed = fmt.Errorf("%w: already redeemed", ErrInvalidKey)
	ErrUsernameTaken   = errors.New("username already taken")
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidInput    = errors.New("invalid input")
)

// RejectedError is a terminal refusal caused by user input or account state.
// Retrying with the same input gives the same answer.
type RejectedError struct {
	Reason error
}

func (e *RejectedError) Error() string {
	return "rejected: " + e.Reason.Error()
}

func (e *RejectedError) Unwrap() error { return e.Reason }

// TransientError is an infrastructure failure (connectivity, timeout,
// conflict). No state change is implied and the call is safe to retry.
type TransientError struct {
	Op    string
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: temporary failure: %v", e.Op, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

func reject(reason error) error {
	return &RejectedError{Reason: reason}
}

func transient(op string, cause error) error {
	return &TransientError{Op: op, Cause: cause}
}

// IsRejected reports whether err is (or wraps) a *RejectedError.
func IsRejected(err error) bool {
	var r *RejectedError
	return errors.As(err, &r)
}

// IsTransient reports whether err is (or wraps) a *TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
