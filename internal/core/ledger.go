// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/toeirei/gatekeeper/internal/db"
	"github.com/toeirei/gatekeeper/internal/logging"
	"github.com/toeirei/gatekeeper/internal/model"
	"github.com/toeirei/gatekeeper/internal/security"
)

// maxRedeemAttempts bounds retries after a backend serialization conflict.
const maxRedeemAttempts = 3

// MaxIssueBatch caps the number of keys IssueKeys generates per call.
const MaxIssueBatch = 10000

// Ledger owns the key lifecycle: available -> redeemed -> active -> expired.
// Every pool transition is a single store transaction guarded by an
// in-process per-key lock.
type Ledger struct {
	store Store
	clock Clock
	obs   Observer
	locks keyLocks

	// timeout bounds a redemption whose context has no deadline, including
	// the wait for the per-key lock.
	timeout time.Duration
}

// NewLedger returns a Ledger over store. A nil clock uses the system clock and
// a nil observer discards notifications.
func NewLedger(store Store, clock Clock, obs Observer) *Ledger {
	return &Ledger{store: store, clock: clockOrSystem(clock), obs: observerOrNop(obs), timeout: DefaultRedeemTimeout}
}

// bounded applies the default redemption timeout when ctx has no deadline.
func (l *Ledger) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || l.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.timeout)
}

// acquire takes the per-key lock, giving up with a transient error when ctx
// ends first.
func (l *Ledger) acquire(ctx context.Context, op, keyValue string) (func(), error) {
	unlock, err := l.locks.lock(ctx, keyValue)
	if err != nil {
		l.obs.Redemption(RedemptionTransient)
		return nil, transient(op, err)
	}
	return unlock, nil
}

// RedeemNewAccount creates the account and redeems keyValue for it in one
// transaction. If the key cannot be redeemed no account is left behind.
func (l *Ledger) RedeemNewAccount(ctx context.Context, keyValue, username string, verifier security.Verifier) (int64, error) {
	if strings.TrimSpace(username) == "" || !verifier.Valid() {
		l.obs.Redemption(RedemptionRejected)
		return 0, reject(ErrInvalidInput)
	}
	ctx, cancel := l.bounded(ctx)
	defer cancel()
	unlock, err := l.acquire(ctx, "register", keyValue)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var accountID int64
	err = l.withRetry(ctx, func() error {
		id, sub, err := l.store.CreateAccountWithKey(ctx, keyValue, username, verifier.String(), l.clock.Now())
		if err != nil {
			return err
		}
		accountID = id
		logging.Infof("account %s#%d registered, key redeemed until %s", username, id, sub.ExpiresAt.Format("2006-01-02"))
		return nil
	})
	if err != nil {
		return 0, l.redeemError("register", err)
	}
	l.obs.Redemption(RedemptionOK)
	return accountID, nil
}

// RedeemForExistingAccount moves keyValue into the redeemed pool for an
// existing account.
func (l *Ledger) RedeemForExistingAccount(ctx context.Context, keyValue string, accountID int64) error {
	_, err := l.Redeem(ctx, keyValue, accountID)
	return err
}

// Redeem is RedeemForExistingAccount returning the created subscription.
func (l *Ledger) Redeem(ctx context.Context, keyValue string, accountID int64) (*model.Subscription, error) {
	ctx, cancel := l.bounded(ctx)
	defer cancel()
	acc, err := l.store.GetAccountByID(ctx, accountID)
	if err != nil {
		l.obs.Redemption(RedemptionTransient)
		return nil, transient("redeem", err)
	}
	if acc == nil {
		l.obs.Redemption(RedemptionRejected)
		return nil, reject(ErrAccountNotFound)
	}

	unlock, err := l.acquire(ctx, "redeem", keyValue)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var sub *model.Subscription
	err = l.withRetry(ctx, func() error {
		s, err := l.store.RedeemKey(ctx, keyValue, accountID, l.clock.Now())
		if err != nil {
			return err
		}
		sub = s
		return nil
	})
	if err != nil {
		return nil, l.redeemError("redeem", err)
	}
	logging.Infof("account %s redeemed key for product %d until %s", acc, sub.ProductID, sub.ExpiresAt.Format("2006-01-02"))
	l.obs.Redemption(RedemptionOK)
	return sub, nil
}

// withRetry runs fn again while the backend reports serialization conflicts.
func (l *Ledger) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxRedeemAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, db.ErrSerialization) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Debugf("ledger: serialization conflict, attempt %d/%d", attempt, maxRedeemAttempts)
	}
	return err
}

// redeemError maps store errors to rejections or transient failures and
// records the result.
func (l *Ledger) redeemError(op string, err error) error {
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		l.obs.Redemption(RedemptionInvalidKey)
		return reject(ErrInvalidKey)
	case errors.Is(err, db.ErrKeyConsumed):
		l.obs.Redemption(RedemptionAlreadyRedeemed)
		return reject(ErrAlreadyRedeemed)
	case errors.Is(err, db.ErrDuplicate):
		l.obs.Redemption(RedemptionUsernameTaken)
		return reject(ErrUsernameTaken)
	default:
		l.obs.Redemption(RedemptionTransient)
		logging.Warnf("ledger: %s failed: %v", op, err)
		return transient(op, err)
	}
}

// LatestSubscription returns the active-flagged record with the greatest
// expiry for the account, or nil.
func (l *Ledger) LatestSubscription(ctx context.Context, accountID int64) (*model.Subscription, error) {
	sub, err := l.store.LatestActiveSubscription(ctx, accountID)
	if err != nil {
		return nil, transient("latest subscription", err)
	}
	return sub, nil
}

// DeactivateExpired clears the active flag on the account's past-expiry
// records. Calling it again is harmless.
func (l *Ledger) DeactivateExpired(ctx context.Context, accountID int64) (int64, error) {
	n, err := l.store.DeactivateExpired(ctx, accountID, l.clock.Now())
	if err != nil {
		return 0, transient("deactivate expired", err)
	}
	return n, nil
}

// ActiveSubscriptions lists the account's active-flagged subscriptions with
// product names, newest expiry first.
func (l *Ledger) ActiveSubscriptions(ctx context.Context, accountID int64) ([]model.ActiveProduct, error) {
	out, err := l.store.ActiveProducts(ctx, accountID)
	if err != nil {
		return nil, transient("active subscriptions", err)
	}
	return out, nil
}

// AddProduct registers a product that keys can be issued for.
func (l *Ledger) AddProduct(ctx context.Context, name string) (*model.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, reject(fmt.Errorf("%w: product name is required", ErrInvalidInput))
	}
	p, err := l.store.AddProduct(ctx, name, l.clock.Now())
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, reject(fmt.Errorf("%w: product %q already exists", ErrInvalidInput, name))
		}
		return nil, transient("add product", err)
	}
	return p, nil
}

// ListProducts returns all products.
func (l *Ledger) ListProducts(ctx context.Context) ([]model.Product, error) {
	ps, err := l.store.ListProducts(ctx)
	if err != nil {
		return nil, transient("list products", err)
	}
	return ps, nil
}

// IssueKeys generates count new keys for productID into the available pool.
// Key values are upper-case random UUIDs.
func (l *Ledger) IssueKeys(ctx context.Context, productID int64, durationDays, count int) ([]model.AvailableKey, error) {
	if durationDays <= 0 {
		return nil, reject(fmt.Errorf("%w: duration must be at least one day", ErrInvalidInput))
	}
	if count <= 0 || count > MaxIssueBatch {
		return nil, reject(fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidInput, MaxIssueBatch))
	}
	p, err := l.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, transient("issue keys", err)
	}
	if p == nil {
		return nil, reject(fmt.Errorf("%w: product %d does not exist", ErrInvalidInput, productID))
	}

	now := l.clock.Now()
	keys := make([]model.AvailableKey, 0, count)
	for i := 0; i < count; i++ {
		keys = append(keys, model.AvailableKey{
			KeyValue:     strings.ToUpper(uuid.NewString()),
			DurationDays: durationDays,
			ProductID:    productID,
			CreatedAt:    now,
		})
	}
	if err := l.store.AddAvailableKeys(ctx, keys); err != nil {
		return nil, transient("issue keys", err)
	}
	logging.Infof("issued %d keys for product %s (%d days)", count, p.Name, durationDays)
	return keys, nil
}

// ListAvailableKeys lists the unclaimed pool; productID 0 lists all products.
func (l *Ledger) ListAvailableKeys(ctx context.Context, productID int64) ([]model.AvailableKey, error) {
	ks, err := l.store.ListAvailableKeys(ctx, productID)
	if err != nil {
		return nil, transient("list keys", err)
	}
	return ks, nil
}
