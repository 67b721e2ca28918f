// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"time"

	"github.com/toeirei/gatekeeper/internal/model"
	"github.com/uptrace/bun"
)

// UserModel maps the `users` table for Bun queries.
type UserModel struct {
	bun.BaseModel `bun:"table:users"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Username      string    `bun:"username"`
	PasswordHash  string    `bun:"password_hash"`
	CreatedAt     time.Time `bun:"created_at"`
}

// ProductModel maps the `products` table.
type ProductModel struct {
	bun.BaseModel `bun:"table:products"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Name          string    `bun:"name"`
	CreatedAt     time.Time `bun:"created_at"`
}

// AvailableKeyModel maps the `available_keys` table (the unclaimed pool).
type AvailableKeyModel struct {
	bun.BaseModel `bun:"table:available_keys"`
	ID            int64     `bun:"id,pk,autoincrement"`
	KeyValue      string    `bun:"key_value"`
	DurationDays  int       `bun:"duration_days"`
	ProductID     int64     `bun:"product_id"`
	CreatedAt     time.Time `bun:"created_at"`
}

// RedemptionModel maps the `key_redemptions` table (the redeemed pool).
type RedemptionModel struct {
	bun.BaseModel `bun:"table:key_redemptions"`
	ID            int64     `bun:"id,pk,autoincrement"`
	KeyValue      string    `bun:"key_value"`
	UserID        int64     `bun:"user_id"`
	ProductID     int64     `bun:"product_id"`
	RedeemedAt    time.Time `bun:"redeemed_at"`
	ExpiresAt     time.Time `bun:"expires_at"`
	IsActive      bool      `bun:"is_active"`
}

// LoginRecordModel maps the append-only `login_records` table.
type LoginRecordModel struct {
	bun.BaseModel `bun:"table:login_records"`
	ID            int64     `bun:"id,pk,autoincrement"`
	UserID        int64     `bun:"user_id"`
	MachineID     string    `bun:"machine_id"`
	OSVersion     string    `bun:"os_version"`
	CPUID         string    `bun:"cpu_id"`
	MACAddress    string    `bun:"mac_address"`
	Auxiliary     string    `bun:"auxiliary"`
	LoginTime     time.Time `bun:"login_time"`
}

// activeProductRow is the scan target for the dashboard join.
type activeProductRow struct {
	ProductID   int64     `bun:"product_id"`
	ProductName string    `bun:"product_name"`
	KeyValue    string    `bun:"key_value"`
	ExpiresAt   time.Time `bun:"expires_at"`
}

func userModelToModel(u UserModel) model.Account {
	return model.Account{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.UTC(),
	}
}

func productModelToModel(p ProductModel) model.Product {
	return model.Product{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt.UTC()}
}

func availableKeyModelToModel(k AvailableKeyModel) model.AvailableKey {
	return model.AvailableKey{
		ID:           k.ID,
		KeyValue:     k.KeyValue,
		DurationDays: k.DurationDays,
		ProductID:    k.ProductID,
		CreatedAt:    k.CreatedAt.UTC(),
	}
}

func redemptionModelToModel(r RedemptionModel) model.Subscription {
	return model.Subscription{
		ID:         r.ID,
		KeyValue:   r.KeyValue,
		AccountID:  r.UserID,
		ProductID:  r.ProductID,
		RedeemedAt: r.RedeemedAt.UTC(),
		ExpiresAt:  r.ExpiresAt.UTC(),
		IsActive:   r.IsActive,
	}
}

func loginRecordModelToModel(r LoginRecordModel) model.LoginRecord {
	return model.LoginRecord{
		ID:         r.ID,
		AccountID:  r.UserID,
		MachineID:  r.MachineID,
		OSVersion:  r.OSVersion,
		CPUID:      r.CPUID,
		MACAddress: r.MACAddress,
		Auxiliary:  r.Auxiliary,
		LoginTime:  r.LoginTime.UTC(),
	}
}

// dbTime normalises a timestamp before it is written. All stored times are UTC
// with microsecond precision so that every backend compares them alike.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
