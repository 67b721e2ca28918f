// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

// Package keypool moves the pool of unredeemed keys between databases as a
// zstd-compressed JSON document.
package keypool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/toeirei/gatekeeper/internal/model"
	"golang.org/x/sync/errgroup"
)

// SchemaVersion is the format version written by Export.
const SchemaVersion = 1

// ErrUnsupportedVersion is returned by Import for documents of another format.
var ErrUnsupportedVersion = errors.New("unsupported key pool schema version")

// Store is the subset of db.Store used for export and import.
type Store interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	ListAvailableKeys(ctx context.Context, productID int64) ([]model.AvailableKey, error)
	EnsureProduct(ctx context.Context, name string, now time.Time) (*model.Product, error)
	AddAvailableKeys(ctx context.Context, keys []model.AvailableKey) error
}

// Export snapshots every product and every unredeemed key.
func Export(ctx context.Context, st Store, now time.Time) (*model.KeyPoolExport, error) {
	products, err := st.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	keys, err := st.ListAvailableKeys(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return &model.KeyPoolExport{
		SchemaVersion: SchemaVersion,
		ExportedAt:    now.UTC(),
		Products:      products,
		Keys:          keys,
	}, nil
}

// Write encodes data as indented JSON into a zstd stream on w.
func Write(data *model.KeyPoolExport, w io.Writer) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode key pool: %w", err)
	}
	return zw.Close()
}

// Read decodes a document produced by Write.
func Read(r io.Reader) (*model.KeyPoolExport, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()
	var data model.KeyPoolExport
	if err := json.NewDecoder(zr).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode key pool: %w", err)
	}
	return &data, nil
}

// Import adds the keys of data to st. Products are matched by name and
// created when missing, so product IDs of the source database do not need to
// exist in the target. Keys already in the target pool are skipped. The keys
// are written in one transaction: a key that was redeemed in the target
// aborts the whole import with db.ErrDuplicate.
func Import(ctx context.Context, st Store, data *model.KeyPoolExport, now time.Time) (imported, skipped int, err error) {
	if data.SchemaVersion != SchemaVersion {
		return 0, 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data.SchemaVersion)
	}

	idMap, err := ensureProducts(ctx, st, data.Products, now)
	if err != nil {
		return 0, 0, err
	}

	existing, err := st.ListAvailableKeys(ctx, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("list keys: %w", err)
	}
	present := make(map[string]struct{}, len(existing))
	for _, k := range existing {
		present[k.KeyValue] = struct{}{}
	}

	batch := make([]model.AvailableKey, 0, len(data.Keys))
	for _, k := range data.Keys {
		if _, ok := present[k.KeyValue]; ok {
			skipped++
			continue
		}
		pid, ok := idMap[k.ProductID]
		if !ok {
			return 0, 0, fmt.Errorf("key %s references unknown product %d", k.KeyValue, k.ProductID)
		}
		created := k.CreatedAt
		if created.IsZero() {
			created = now
		}
		present[k.KeyValue] = struct{}{}
		batch = append(batch, model.AvailableKey{
			KeyValue:     k.KeyValue,
			DurationDays: k.DurationDays,
			ProductID:    pid,
			CreatedAt:    created,
		})
	}
	if len(batch) == 0 {
		return 0, skipped, nil
	}
	if err := st.AddAvailableKeys(ctx, batch); err != nil {
		return 0, 0, fmt.Errorf("add keys: %w", err)
	}
	return len(batch), skipped, nil
}

// ensureProducts maps source product IDs to target product IDs.
func ensureProducts(ctx context.Context, st Store, products []model.Product, now time.Time) (map[int64]int64, error) {
	var mu sync.Mutex
	idMap := make(map[int64]int64, len(products))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, p := range products {
		g.Go(func() error {
			got, err := st.EnsureProduct(gctx, p.Name, now)
			if err != nil {
				return fmt.Errorf("ensure product %q: %w", p.Name, err)
			}
			mu.Lock()
			idMap[p.ID] = got.ID
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return idMap, nil
}
