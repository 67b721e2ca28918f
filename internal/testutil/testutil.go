// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

// Package testutil holds fixtures shared by the tests of packages above the
// store. Package db cannot use it.
package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/toeirei/gatekeeper/internal/db"
	"github.com/toeirei/gatekeeper/internal/model"
)

// MemoryDSN returns a shared-cache in-memory SQLite DSN unique to the test,
// so several stores opened on it see the same data.
func MemoryDSN(t testing.TB, prefix string) string {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	return "file:" + prefix + "_" + name + "?mode=memory&cache=shared"
}

// NewStore opens a migrated in-memory store that is closed when the test
// ends.
func NewStore(t testing.TB, prefix string) db.Store {
	t.Helper()
	s, err := db.NewStoreFromDSN("sqlite", MemoryDSN(t, prefix))
	if err != nil {
		t.Fatalf("NewStoreFromDSN failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// SeedKeys ensures product exists and adds keys for it with the given
// duration.
func SeedKeys(t testing.TB, s db.Store, product string, days int, at time.Time, keys ...string) model.Product {
	t.Helper()
	ctx := context.Background()
	p, err := s.EnsureProduct(ctx, product, at)
	if err != nil {
		t.Fatalf("EnsureProduct failed: %v", err)
	}
	ks := make([]model.AvailableKey, 0, len(keys))
	for _, k := range keys {
		ks = append(ks, model.AvailableKey{KeyValue: k, DurationDays: days, ProductID: p.ID, CreatedAt: at})
	}
	if len(ks) > 0 {
		if err := s.AddAvailableKeys(ctx, ks); err != nil {
			t.Fatalf("AddAvailableKeys failed: %v", err)
		}
	}
	return *p
}
