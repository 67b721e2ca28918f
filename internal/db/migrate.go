// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed migrations
var embeddedMigrations embed.FS

const migrationSuffix = ".up.sql"

// migration is one embedded schema step, identified by its file name minus
// the suffix.
type migration struct {
	version string
	file    string
}

// pendingMigrations lists the embedded steps for dbType in version order.
func pendingMigrations(dbType string) ([]migration, error) {
	dir := path.Join("migrations", dbType)
	entries, err := fs.ReadDir(embeddedMigrations, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations (%s): %w", dir, err)
	}
	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), migrationSuffix) {
			continue
		}
		out = append(out, migration{
			version: strings.TrimSuffix(e.Name(), migrationSuffix),
			file:    path.Join(dir, e.Name()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// RunMigrations brings the ledger schema for dbType up to date. Versions
// already listed in schema_migrations are skipped; every other step runs in
// its own transaction together with its bookkeeping row.
func RunMigrations(db *sql.DB, dbType string) error {
	started := time.Now()
	steps, err := pendingMigrations(dbType)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		dbLogf("db: no migrations embedded for %s", dbType)
		return nil
	}
	if _, err := db.Exec(migrationsTableDDL(dbType)); err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}
	done, err := appliedVersions(db)
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range steps {
		if done[m.version] {
			continue
		}
		if err := applyMigration(db, dbType, m); err != nil {
			return err
		}
		applied++
	}
	dbLogf("db: %s schema current (%d new of %d) in %s", dbType, applied, len(steps), time.Since(started))
	return nil
}

// migrationsTableDDL accounts for MySQL refusing to index unbounded TEXT.
func migrationsTableDDL(dbType string) string {
	if dbType == "mysql" {
		return `CREATE TABLE IF NOT EXISTS schema_migrations (version VARCHAR(191) PRIMARY KEY, applied_at TIMESTAMP NULL)`
	}
	return `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMP)`
}

func appliedVersions(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to list applied migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to read applied migration: %w", err)
		}
		done[v] = true
	}
	return done, rows.Err()
}

func applyMigration(db *sql.DB, dbType string, m migration) (err error) {
	script, err := embeddedMigrations.ReadFile(m.file)
	if err != nil {
		return fmt.Errorf("failed to read migration %s: %w", m.file, err)
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migration %s: begin: %w", m.version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range splitStatements(string(script)) {
		if _, err = tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", m.version, err)
		}
	}
	record := "INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)"
	if dbType == "postgres" {
		record = "INSERT INTO schema_migrations(version, applied_at) VALUES($1, $2)"
	}
	if _, err = tx.Exec(record, m.version, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("migration %s: commit: %w", m.version, err)
	}
	return nil
}

// splitStatements cuts a script into statements on ';' and drops "--" comment
// lines. Literals in migration files must not contain semicolons.
func splitStatements(script string) []string {
	var out []string
	for _, chunk := range strings.Split(script, ";") {
		var b strings.Builder
		for _, line := range strings.Split(chunk, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
		if stmt := strings.TrimSpace(b.String()); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
