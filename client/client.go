// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package client

import (
	"context"
	"time"

	"github.com/toeirei/gatekeeper/internal/security"
)

// Client is what an application needs to gate itself on a license.
// Errors carry the core taxonomy: rejections wrap a *core.RejectedError and
// infrastructure failures a *core.TransientError, whichever transport is used.
type Client interface {
	// Close releases the resources held by the client.
	Close(ctx context.Context) error

	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error

	// Login authenticates from the client's machine. An expired subscription
	// is still a successful login; check Session.Expired.
	Login(ctx context.Context, username string, password security.Secret) (Session, error)

	// Register creates an account by redeeming key and returns its id.
	Register(ctx context.Context, r Registration) (int64, error)

	// Redeem extends accountID with another key.
	Redeem(ctx context.Context, accountID int64, key string) (Subscription, error)

	// Subscriptions lists the active subscriptions of accountID.
	Subscriptions(ctx context.Context, accountID int64) ([]Subscription, error)
}

// Registration is the input of Client.Register.
type Registration struct {
	Username string
	Password security.Secret
	Confirm  security.Secret
	Key      string
}

// Session is an accepted login.
type Session struct {
	AccountID    int64
	Username     string
	Expired      bool
	Message      string
	Subscription *Subscription
}

// Active reports whether the session carries a usable subscription.
func (s Session) Active() bool {
	return s.Subscription != nil && !s.Expired
}

// Subscription describes one redeemed key.
type Subscription struct {
	ProductID   int64
	ProductName string
	ExpiresAt   time.Time
}
