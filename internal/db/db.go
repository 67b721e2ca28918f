// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package db // import "github.com/toeirei/gatekeeper/internal/db"

import (
	"database/sql"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	_ "modernc.org/sqlite"

	// Registered for the postgres and mysql backends.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// sqlOpenFunc is swapped by tests to simulate driver failures.
var sqlOpenFunc = sql.Open

// SupportedTypes lists the accepted values for the database type setting.
var SupportedTypes = []string{"sqlite", "postgres", "mysql"}

// driverNameFor returns the database/sql driver name; pgx registers as "pgx".
func driverNameFor(dbType string) string {
	if dbType == "postgres" {
		return "pgx"
	}
	return dbType
}

// poolSettings is the connection pool shape applied to a freshly opened DB.
type poolSettings struct {
	maxOpen  int
	maxIdle  int
	lifetime time.Duration
	idleTime time.Duration
}

// poolFor derives pool settings for the backend. GATEKEEPER_DB_* variables
// tune the networked backends; sqlite is pinned to a single connection since
// it allows one writer at a time, and in-memory sqlite must keep that
// connection forever or the ledger disappears.
func poolFor(dbType, dsn string) poolSettings {
	p := poolSettings{
		maxOpen:  envInt("GATEKEEPER_DB_MAX_OPEN_CONNS", 25),
		maxIdle:  envInt("GATEKEEPER_DB_MAX_IDLE_CONNS", 25),
		lifetime: envSeconds("GATEKEEPER_DB_CONN_MAX_LIFETIME_SECONDS", 5*time.Minute),
		idleTime: envSeconds("GATEKEEPER_DB_CONN_MAX_IDLE_SECONDS", time.Minute),
	}
	if dbType != "sqlite" {
		return p
	}
	p.maxOpen, p.maxIdle = 1, 1
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		p.lifetime, p.idleTime = 0, 0
	}
	return p
}

func (p poolSettings) apply(sqlDB *sql.DB) {
	sqlDB.SetMaxOpenConns(p.maxOpen)
	sqlDB.SetMaxIdleConns(p.maxIdle)
	sqlDB.SetConnMaxLifetime(p.lifetime)
	sqlDB.SetConnMaxIdleTime(p.idleTime)
}

// NewStoreFromDSN opens the database, brings its schema up to date and wraps
// it in a BunStore.
func NewStoreFromDSN(dbType, dsn string) (Store, error) {
	if !slices.Contains(SupportedTypes, dbType) {
		return nil, fmt.Errorf("unsupported database type: '%s'", dbType)
	}
	opened := time.Now()
	sqlDB, err := sqlOpenFunc(driverNameFor(dbType), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pool := poolFor(dbType, dsn)
	pool.apply(sqlDB)
	dbLogf("db: %s ready in %s (max open=%d, idle=%s, lifetime=%s)", dbType, time.Since(opened), pool.maxOpen, pool.idleTime, pool.lifetime)

	if err := RunMigrations(sqlDB, dbType); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &BunStore{bun: bun.NewDB(sqlDB, dialectFor(dbType)), dbType: dbType}, nil
}

func dialectFor(dbType string) schema.Dialect {
	switch dbType {
	case "postgres":
		return pgdialect.New()
	case "mysql":
		return mysqldialect.New()
	default:
		return sqlitedialect.New()
	}
}

// envInt reads a non-negative integer from the environment.
func envInt(name string, def int) int {
	n, err := strconv.Atoi(os.Getenv(name))
	if err != nil || n < 0 {
		return def
	}
	return n
}

func envSeconds(name string, def time.Duration) time.Duration {
	return time.Duration(envInt(name, int(def/time.Second))) * time.Second
}
