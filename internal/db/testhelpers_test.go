// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/toeirei/gatekeeper/internal/model"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestStore opens an in-memory sqlite store private to the test.
func newTestStore(t *testing.T) *BunStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := NewStoreFromDSN("sqlite", "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStoreFromDSN failed: %v", err)
	}
	bs, ok := s.(*BunStore)
	if !ok {
		t.Fatalf("store is not *BunStore")
	}
	t.Cleanup(func() { _ = bs.Close() })
	return bs
}

// seedKey adds a product and one available key for it.
func seedKey(t *testing.T, s *BunStore, keyValue string, days int) model.Product {
	t.Helper()
	ctx := context.Background()
	p, err := s.EnsureProduct(ctx, "Premium", testNow)
	if err != nil {
		t.Fatalf("EnsureProduct failed: %v", err)
	}
	if err := s.AddAvailableKeys(ctx, []model.AvailableKey{{KeyValue: keyValue, DurationDays: days, ProductID: p.ID, CreatedAt: testNow}}); err != nil {
		t.Fatalf("AddAvailableKeys failed: %v", err)
	}
	return *p
}
