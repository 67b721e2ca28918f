// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
)

// ledgerTx runs fn in one transaction at the strictest isolation the backend
// offers. fn returning an error rolls everything back.
func (s *BunStore) ledgerTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return s.bun.RunInTx(ctx, strictTxOptions(s.dbType), fn)
}

// strictTxOptions asks postgres and mysql for SERIALIZABLE. sqlite is
// serializable already and its pure-Go driver rejects explicit levels.
func strictTxOptions(dbType string) *sql.TxOptions {
	if supportsRowLocks(dbType) {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

// supportsRowLocks reports whether SELECT ... FOR UPDATE is valid for dbType.
func supportsRowLocks(dbType string) bool {
	return dbType == "postgres" || dbType == "mysql"
}
