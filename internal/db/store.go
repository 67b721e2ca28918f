// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"time"

	"github.com/toeirei/gatekeeper/internal/model"
)

// Store defines the interface for all database operations in Gatekeeper.
// This allows for multiple database backends to be implemented.
//
// Lookups that find nothing return (nil, nil). Backend errors are passed
// through MapDBError so callers can test for ErrDuplicate and ErrSerialization.
type Store interface {
	// Account methods
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, error)
	GetAccountByID(ctx context.Context, id int64) (*model.Account, error)

	// Ledger methods. Both run as a single transaction; CreateAccountWithKey
	// leaves no account behind when the key cannot be redeemed.
	CreateAccountWithKey(ctx context.Context, keyValue, username, passwordHash string, now time.Time) (int64, *model.Subscription, error)
	RedeemKey(ctx context.Context, keyValue string, accountID int64, now time.Time) (*model.Subscription, error)
	LatestActiveSubscription(ctx context.Context, accountID int64) (*model.Subscription, error)
	DeactivateExpired(ctx context.Context, accountID int64, now time.Time) (int64, error)
	ActiveProducts(ctx context.Context, accountID int64) ([]model.ActiveProduct, error)

	// Product and key pool methods
	AddProduct(ctx context.Context, name string, now time.Time) (*model.Product, error)
	EnsureProduct(ctx context.Context, name string, now time.Time) (*model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	AddAvailableKeys(ctx context.Context, keys []model.AvailableKey) error
	ListAvailableKeys(ctx context.Context, productID int64) ([]model.AvailableKey, error)

	// Access log methods
	AppendLoginRecord(ctx context.Context, rec model.LoginRecord) (int64, error)
	MostRecentLoginRecord(ctx context.Context, accountID int64) (*model.LoginRecord, error)

	Close() error
}
