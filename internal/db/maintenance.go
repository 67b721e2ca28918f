// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// maintenanceTimeout bounds a whole maintenance run.
const maintenanceTimeout = 2 * time.Minute

// RunDBMaintenance compacts and checks the ledger database on a dedicated
// connection. sqlite is optimized, vacuumed, checkpointed and then integrity
// checked; postgres gets VACUUM ANALYZE and mysql OPTIMIZE TABLE per table.
func RunDBMaintenance(ctx context.Context, dbType, dsn string) error {
	var run func(context.Context, *sql.DB) error
	switch dbType {
	case "sqlite":
		run = maintainSQLite
	case "postgres":
		run = maintainPostgres
	case "mysql":
		run = maintainMySQL
	default:
		return fmt.Errorf("unsupported db type for maintenance: %s", dbType)
	}

	sqlDB, err := sqlOpenFunc(driverNameFor(dbType), dsn)
	if err != nil {
		return fmt.Errorf("failed to open database for maintenance: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	ctx, cancel := context.WithTimeout(ctx, maintenanceTimeout)
	defer cancel()
	started := time.Now()
	if err := run(ctx, sqlDB); err != nil {
		return err
	}
	dbLogf("db: %s maintenance finished in %s", dbType, time.Since(started))
	return nil
}

func maintainSQLite(ctx context.Context, sqlDB *sql.DB) error {
	// optimize is advisory and fails on some in-memory setups.
	if _, err := sqlDB.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		dbLogf("db: sqlite optimize skipped: %v", err)
	}
	if _, err := sqlDB.ExecContext(ctx, "VACUUM;"); err != nil {
		return fmt.Errorf("sqlite vacuum failed: %w", err)
	}
	_, _ = sqlDB.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE);")

	var verdict string
	if err := sqlDB.QueryRowContext(ctx, "PRAGMA integrity_check;").Scan(&verdict); err == nil && verdict != "ok" {
		return fmt.Errorf("sqlite integrity_check failed: %s", verdict)
	}
	return nil
}

func maintainPostgres(ctx context.Context, sqlDB *sql.DB) error {
	if _, err := sqlDB.ExecContext(ctx, "VACUUM ANALYZE;"); err != nil {
		return fmt.Errorf("postgres vacuum failed: %w", err)
	}
	return nil
}

// maintainMySQL optimizes every table and reports the last failure after
// trying all of them.
func maintainMySQL(ctx context.Context, sqlDB *sql.DB) error {
	tables, err := mysqlTables(ctx, sqlDB)
	if err != nil {
		return err
	}
	var lastErr error
	for _, table := range tables {
		if _, err := sqlDB.ExecContext(ctx, fmt.Sprintf("OPTIMIZE TABLE `%s`", table)); err != nil {
			dbLogf("db: mysql optimize %s failed: %v", table, err)
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("mysql optimize encountered errors: %w", lastErr)
	}
	return nil
}

func mysqlTables(ctx context.Context, sqlDB *sql.DB) ([]string, error) {
	rows, err := sqlDB.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, fmt.Errorf("mysql show tables failed: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("mysql read table name failed: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
