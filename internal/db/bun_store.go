// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/toeirei/gatekeeper/internal/model"
	"github.com/uptrace/bun"
)

// BunStore implements Store on top of a long-lived *bun.DB. The same code
// serves SQLite, PostgreSQL and MySQL; dialect differences are limited to
// transaction isolation and row locking.
type BunStore struct {
	bun    *bun.DB
	dbType string
}

var _ Store = (*BunStore)(nil)

// BunDB exposes the underlying *bun.DB, mainly for tests and maintenance.
func (s *BunStore) BunDB() *bun.DB { return s.bun }

// Close closes the underlying connection pool.
func (s *BunStore) Close() error {
	if s == nil || s.bun == nil {
		return nil
	}
	return s.bun.Close()
}

// GetAccountByUsername looks up an account with a case-sensitive match.
func (s *BunStore) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	var u UserModel
	err := s.bun.NewSelect().Model(&u).Where("username = ?", username).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, MapDBError(err)
	}
	// SQLite and PostgreSQL compare TEXT byte-wise already; the explicit check
	// guards backends configured with a case-insensitive collation.
	if u.Username != username {
		return nil, nil
	}
	a := userModelToModel(u)
	return &a, nil
}

// GetAccountByID returns the account or nil when it does not exist.
func (s *BunStore) GetAccountByID(ctx context.Context, id int64) (*model.Account, error) {
	var u UserModel
	err := s.bun.NewSelect().Model(&u).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, MapDBError(err)
	}
	a := userModelToModel(u)
	return &a, nil
}

// CreateAccountWithKey inserts the account and moves keyValue from the
// available pool to the redeemed pool in one transaction. ErrDuplicate means
// the username is taken; ErrKeyNotFound and ErrKeyConsumed roll the account
// insert back.
func (s *BunStore) CreateAccountWithKey(ctx context.Context, keyValue, username, passwordHash string, now time.Time) (int64, *model.Subscription, error) {
	var (
		accountID int64
		sub       *model.Subscription
	)
	err := s.ledgerTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		u := &UserModel{Username: username, PasswordHash: passwordHash, CreatedAt: dbTime(now)}
		if _, err := tx.NewInsert().Model(u).Exec(ctx); err != nil {
			return MapDBError(err)
		}
		if u.ID == 0 {
			return fmt.Errorf("account insert returned no id")
		}
		r, err := s.redeemInTx(ctx, tx, keyValue, u.ID, now)
		if err != nil {
			return err
		}
		accountID, sub = u.ID, r
		return nil
	})
	if err != nil {
		return 0, nil, mapTxError(err)
	}
	dbLogf("db: account %d created with key redemption %d", accountID, sub.ID)
	return accountID, sub, nil
}

// RedeemKey moves keyValue from the available pool to the redeemed pool for
// an existing account.
func (s *BunStore) RedeemKey(ctx context.Context, keyValue string, accountID int64, now time.Time) (*model.Subscription, error) {
	var sub *model.Subscription
	err := s.ledgerTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		r, err := s.redeemInTx(ctx, tx, keyValue, accountID, now)
		if err != nil {
			return err
		}
		sub = r
		return nil
	})
	if err != nil {
		return nil, mapTxError(err)
	}
	return sub, nil
}

// redeemInTx performs the pool transition inside tx. The key row is locked
// where the dialect supports it, the delete must remove exactly one row, and
// the UNIQUE constraint on key_redemptions.key_value rejects a second insert.
func (s *BunStore) redeemInTx(ctx context.Context, tx bun.Tx, keyValue string, accountID int64, now time.Time) (*model.Subscription, error) {
	var ak AvailableKeyModel
	q := tx.NewSelect().Model(&ak).Where("key_value = ?", keyValue).Limit(1)
	if supportsRowLocks(s.dbType) {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.missingKeyError(ctx, tx, keyValue)
		}
		return nil, MapDBError(err)
	}
	// Collation may match keys that differ in case; key values are exact.
	if ak.KeyValue != keyValue {
		return nil, ErrKeyNotFound
	}

	res, err := tx.NewDelete().Model((*AvailableKeyModel)(nil)).Where("id = ?", ak.ID).Exec(ctx)
	if err != nil {
		return nil, MapDBError(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, MapDBError(err)
	} else if n != 1 {
		return nil, ErrKeyConsumed
	}

	redeemedAt := dbTime(now)
	red := &RedemptionModel{
		KeyValue:   ak.KeyValue,
		UserID:     accountID,
		ProductID:  ak.ProductID,
		RedeemedAt: redeemedAt,
		ExpiresAt:  redeemedAt.Add(time.Duration(ak.DurationDays) * 24 * time.Hour),
		IsActive:   true,
	}
	if _, err := tx.NewInsert().Model(red).Exec(ctx); err != nil {
		mapped := MapDBError(err)
		if errors.Is(mapped, ErrDuplicate) {
			return nil, ErrKeyConsumed
		}
		return nil, mapped
	}
	sub := redemptionModelToModel(*red)
	return &sub, nil
}

// missingKeyError distinguishes a key that was never issued from one that has
// already moved to the redeemed pool.
func (s *BunStore) missingKeyError(ctx context.Context, tx bun.Tx, keyValue string) error {
	consumed, err := tx.NewSelect().Model((*RedemptionModel)(nil)).Where("key_value = ?", keyValue).Exists(ctx)
	if err != nil {
		return MapDBError(err)
	}
	if consumed {
		return ErrKeyConsumed
	}
	return ErrKeyNotFound
}

// LatestActiveSubscription returns the active-flagged redemption with the
// greatest expires_at, or nil.
func (s *BunStore) LatestActiveSubscription(ctx context.Context, accountID int64) (*model.Subscription, error) {
	var r RedemptionModel
	err := s.bun.NewSelect().Model(&r).
		Where("user_id = ?", accountID).
		Where("is_active = ?", true).
		OrderExpr("expires_at DESC, id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, MapDBError(err)
	}
	sub := redemptionModelToModel(r)
	return &sub, nil
}

// DeactivateExpired clears is_active on the account's records whose expiry
// lies before now. It returns the number of rows changed; repeating the call
// changes nothing.
func (s *BunStore) DeactivateExpired(ctx context.Context, accountID int64, now time.Time) (int64, error) {
	res, err := s.bun.NewUpdate().Model((*RedemptionModel)(nil)).
		Set("is_active = ?", false).
		Where("user_id = ?", accountID).
		Where("is_active = ?", true).
		Where("expires_at < ?", dbTime(now)).
		Exec(ctx)
	if err != nil {
		return 0, MapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, MapDBError(err)
	}
	if n > 0 {
		dbLogf("db: deactivated %d expired redemptions for account %d", n, accountID)
	}
	return n, nil
}

// ActiveProducts lists the account's active-flagged redemptions joined with
// their product names, newest expiry first.
func (s *BunStore) ActiveProducts(ctx context.Context, accountID int64) ([]model.ActiveProduct, error) {
	var rows []activeProductRow
	err := s.bun.NewSelect().
		TableExpr("key_redemptions AS r").
		Join("JOIN products AS p ON p.id = r.product_id").
		ColumnExpr("r.product_id AS product_id").
		ColumnExpr("p.name AS product_name").
		ColumnExpr("r.key_value AS key_value").
		ColumnExpr("r.expires_at AS expires_at").
		Where("r.user_id = ?", accountID).
		Where("r.is_active = ?", true).
		OrderExpr("r.expires_at DESC, r.id DESC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, MapDBError(err)
	}
	out := make([]model.ActiveProduct, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.ActiveProduct{
			ProductID:   r.ProductID,
			ProductName: r.ProductName,
			KeyValue:    r.KeyValue,
			ExpiresAt:   r.ExpiresAt.UTC(),
		})
	}
	return out, nil
}

// AddProduct inserts a new product. A taken name yields ErrDuplicate.
func (s *BunStore) AddProduct(ctx context.Context, name string, now time.Time) (*model.Product, error) {
	p := &ProductModel{Name: name, CreatedAt: dbTime(now)}
	if _, err := s.bun.NewInsert().Model(p).Exec(ctx); err != nil {
		return nil, MapDBError(err)
	}
	m := productModelToModel(*p)
	return &m, nil
}

// EnsureProduct returns the product with the given name, creating it first
// when it does not exist.
func (s *BunStore) EnsureProduct(ctx context.Context, name string, now time.Time) (*model.Product, error) {
	var p ProductModel
	err := s.bun.NewSelect().Model(&p).Where("name = ?", name).Limit(1).Scan(ctx)
	if err == nil {
		m := productModelToModel(p)
		return &m, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, MapDBError(err)
	}
	return s.AddProduct(ctx, name, now)
}

// GetProduct returns the product or nil when it does not exist.
func (s *BunStore) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	var p ProductModel
	err := s.bun.NewSelect().Model(&p).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, MapDBError(err)
	}
	m := productModelToModel(p)
	return &m, nil
}

// ListProducts returns all products ordered by id.
func (s *BunStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	var ps []ProductModel
	if err := s.bun.NewSelect().Model(&ps).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, MapDBError(err)
	}
	out := make([]model.Product, 0, len(ps))
	for _, p := range ps {
		out = append(out, productModelToModel(p))
	}
	return out, nil
}

// AddAvailableKeys inserts keys into the available pool in one transaction.
// A key value already present in either pool yields ErrDuplicate and nothing
// is inserted, so a consumed key can never return to the pool.
func (s *BunStore) AddAvailableKeys(ctx context.Context, keys []model.AvailableKey) error {
	if len(keys) == 0 {
		return nil
	}
	err := s.ledgerTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		for _, k := range keys {
			exists, err := tx.NewSelect().Model((*RedemptionModel)(nil)).Where("key_value = ?", k.KeyValue).Exists(ctx)
			if err != nil {
				return MapDBError(err)
			}
			if exists {
				return fmt.Errorf("%w: key %q was already redeemed", ErrDuplicate, k.KeyValue)
			}
			created := k.CreatedAt
			if created.IsZero() {
				created = time.Now()
			}
			m := &AvailableKeyModel{
				KeyValue:     k.KeyValue,
				DurationDays: k.DurationDays,
				ProductID:    k.ProductID,
				CreatedAt:    dbTime(created),
			}
			if _, err := tx.NewInsert().Model(m).Exec(ctx); err != nil {
				return MapDBError(err)
			}
		}
		return nil
	})
	return mapTxError(err)
}

// ListAvailableKeys lists the unclaimed pool. A productID of 0 lists every
// product.
func (s *BunStore) ListAvailableKeys(ctx context.Context, productID int64) ([]model.AvailableKey, error) {
	var ks []AvailableKeyModel
	q := s.bun.NewSelect().Model(&ks).OrderExpr("id ASC")
	if productID != 0 {
		q = q.Where("product_id = ?", productID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, MapDBError(err)
	}
	out := make([]model.AvailableKey, 0, len(ks))
	for _, k := range ks {
		out = append(out, availableKeyModelToModel(k))
	}
	return out, nil
}

// AppendLoginRecord inserts one access log row and returns its id.
func (s *BunStore) AppendLoginRecord(ctx context.Context, rec model.LoginRecord) (int64, error) {
	m := &LoginRecordModel{
		UserID:     rec.AccountID,
		MachineID:  rec.MachineID,
		OSVersion:  rec.OSVersion,
		CPUID:      rec.CPUID,
		MACAddress: rec.MACAddress,
		Auxiliary:  rec.Auxiliary,
		LoginTime:  dbTime(rec.LoginTime),
	}
	if _, err := s.bun.NewInsert().Model(m).Exec(ctx); err != nil {
		return 0, MapDBError(err)
	}
	return m.ID, nil
}

// MostRecentLoginRecord returns the newest access log row for the account,
// ordered by login_time then id, or nil when none exists.
func (s *BunStore) MostRecentLoginRecord(ctx context.Context, accountID int64) (*model.LoginRecord, error) {
	var r LoginRecordModel
	err := s.bun.NewSelect().Model(&r).
		Where("user_id = ?", accountID).
		OrderExpr("login_time DESC, id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, MapDBError(err)
	}
	rec := loginRecordModelToModel(r)
	return &rec, nil
}
