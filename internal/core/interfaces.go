// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

// Package core contains the licensing state machine: the key ledger, the
// session validator and the access log. The interfaces here describe the
// side-effect boundaries that the database layer, the fingerprint provider
// and the metrics layer implement.
package core

import (
	"context"
	"time"

	"github.com/toeirei/gatekeeper/internal/model"
)

// Store defines the data-store operations used by the core services.
// *db.BunStore satisfies it.
type Store interface {
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, error)
	GetAccountByID(ctx context.Context, id int64) (*model.Account, error)

	CreateAccountWithKey(ctx context.Context, keyValue, username, passwordHash string, now time.Time) (int64, *model.Subscription, error)
	RedeemKey(ctx context.Context, keyValue string, accountID int64, now time.Time) (*model.Subscription, error)
	LatestActiveSubscription(ctx context.Context, accountID int64) (*model.Subscription, error)
	DeactivateExpired(ctx context.Context, accountID int64, now time.Time) (int64, error)
	ActiveProducts(ctx context.Context, accountID int64) ([]model.ActiveProduct, error)

	AddProduct(ctx context.Context, name string, now time.Time) (*model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	AddAvailableKeys(ctx context.Context, keys []model.AvailableKey) error
	ListAvailableKeys(ctx context.Context, productID int64) ([]model.AvailableKey, error)

	AppendLoginRecord(ctx context.Context, rec model.LoginRecord) (int64, error)
	MostRecentLoginRecord(ctx context.Context, accountID int64) (*model.LoginRecord, error)
}

// HostSource supplies the current machine's fingerprint and host attributes.
// fingerprint.Provider implementations satisfy it.
type HostSource interface {
	Host() model.HostAttributes
}

// Observer receives outcome notifications for metrics. All methods must be
// safe for concurrent use and must not block.
type Observer interface {
	LoginOutcome(outcome string)
	Redemption(result string)
	AccessLogWriteFailed()
}

type nopObserver struct{}

func (nopObserver) LoginOutcome(string) {}
func (nopObserver) Redemption(string) {}
func (nopObserver) AccessLogWriteFailed() {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

// Login outcome labels reported to the Observer.
const (
	OutcomeAccepted           = "accepted"
	OutcomeExpired            = "expired"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeHardwareMismatch   = "hardware_mismatch"
	OutcomeTransient          = "transient_error"
)

// Redemption result labels reported to the Observer.
const (
	RedemptionOK              = "ok"
	RedemptionInvalidKey      = "invalid_key"
	RedemptionAlreadyRedeemed = "already_redeemed"
	RedemptionUsernameTaken   = "username_taken"
	RedemptionRejected        = "rejected"
	RedemptionTransient       = "transient_error"
)
