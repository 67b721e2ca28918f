// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrDuplicate is returned when attempting to insert a record that already exists.
	ErrDuplicate = errors.New("duplicate record")
	// ErrSerialization is returned when the backend aborted a transaction
	// because of a concurrent conflicting transaction. Retrying is safe.
	ErrSerialization = errors.New("serialization conflict")
	// ErrKeyNotFound means the key value is not in the available pool.
	ErrKeyNotFound = errors.New("key not available")
	// ErrKeyConsumed means the key value was consumed by another transition.
	ErrKeyConsumed = errors.New("key already consumed")
)

// Driver error codes that map to the sentinels above.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"

	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// MapDBError classifies a driver error by its typed code: unique violations
// become ErrDuplicate and transaction conflicts or busy locks become
// ErrSerialization. Anything else is returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrDuplicate
		case pgSerializationFailure, pgDeadlockDetected:
			return ErrSerialization
		}
		return err
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return ErrDuplicate
		case mysqlDeadlock, mysqlLockWaitTimeout:
			return ErrSerialization
		}
		return err
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		switch {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ErrDuplicate
		case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
			return ErrSerialization
		}
	}
	return err
}

// mapTxError maps an error returned from a transaction body or commit. Errors
// that already carry a package sentinel are returned unchanged.
func mapTxError(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrDuplicate, ErrSerialization, ErrKeyNotFound, ErrKeyConsumed} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return MapDBError(err)
}
