// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/toeirei/gatekeeper/internal/security"
)

// Registration is the input of a new-account registration.
type Registration struct {
	Username string
	Password security.Secret
	Confirm  security.Secret
	Key      string
}

// ValidateRegistration checks that every field is present and that the
// password and its confirmation match. It is pure and deterministic.
func ValidateRegistration(r Registration) error {
	if strings.TrimSpace(r.Username) == "" || r.Password.Empty() || r.Confirm.Empty() || strings.TrimSpace(r.Key) == "" {
		return reject(fmt.Errorf("%w: all fields are required", ErrInvalidInput))
	}
	if !r.Password.Equal(r.Confirm) {
		return reject(fmt.Errorf("%w: passwords do not match", ErrInvalidInput))
	}
	return nil
}

// Register validates r, hashes the password and redeems the key for a new
// account.
func (l *Ledger) Register(ctx context.Context, r Registration) (int64, error) {
	if err := ValidateRegistration(r); err != nil {
		l.obs.Redemption(RedemptionRejected)
		return 0, err
	}
	return l.RedeemNewAccount(ctx, strings.TrimSpace(r.Key), r.Username, security.Hash(r.Password))
}
