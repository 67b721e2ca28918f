// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model holds the plain data types shared by the store, the core
// services and the user-facing surfaces.
package model

import (
	"fmt"
	"time"
)

// Account is a registered user. The password verifier is the hex SHA-256
// digest produced by the security package.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// String returns the username with its id, e.g. "alice#1".
func (a Account) String() string {
	return fmt.Sprintf("%s#%d", a.Username, a.ID)
}

// Product is something a license key grants access to.
type Product struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// AvailableKey is an unclaimed license key in the available pool.
type AvailableKey struct {
	ID           int64
	KeyValue     string
	DurationDays int
	ProductID    int64
	CreatedAt    time.Time
}

// Subscription is a redeemed key bound to exactly one account.
type Subscription struct {
	ID         int64
	KeyValue   string
	AccountID  int64
	ProductID  int64
	RedeemedAt time.Time
	ExpiresAt  time.Time
	IsActive   bool
}

// ExpiredAt reports whether the subscription's expiry lies before now. The
// is_active flag is checked separately by callers.
func (s Subscription) ExpiredAt(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// ActiveProduct is an active-flagged subscription joined with its product name.
type ActiveProduct struct {
	ProductID   int64
	ProductName string
	KeyValue    string
	ExpiresAt   time.Time
}

// MachineFingerprint identifies the host a login came from.
type MachineFingerprint struct {
	MachineID  string `json:"machine_id"`
	CPUID      string `json:"cpu_id"`
	MACAddress string `json:"mac_address"`
}

// HostAttributes is the fingerprint plus the supplementary host data recorded
// with every login.
type HostAttributes struct {
	Fingerprint MachineFingerprint
	OSVersion   string
	Auxiliary   string
}

// LoginRecord is one append-only row of the access log.
type LoginRecord struct {
	ID         int64
	AccountID  int64
	MachineID  string
	OSVersion  string
	CPUID      string
	MACAddress string
	Auxiliary  string
	LoginTime  time.Time
}

// Fingerprint extracts the machine fingerprint stored in the record.
func (r LoginRecord) Fingerprint() MachineFingerprint {
	return MachineFingerprint{MachineID: r.MachineID, CPUID: r.CPUID, MACAddress: r.MACAddress}
}

// KeyPoolExport is the portable representation of the available pool used by
// the export and import commands.
type KeyPoolExport struct {
	SchemaVersion int            `json:"schema_version"`
	ExportedAt    time.Time      `json:"exported_at"`
	Products      []Product      `json:"products"`
	Keys          []AvailableKey `json:"keys"`
}
