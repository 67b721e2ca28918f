// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/toeirei/gatekeeper/internal/db"
	"github.com/toeirei/gatekeeper/internal/model"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubHost struct {
	mu   sync.Mutex
	attr model.HostAttributes
}

func newStubHost(machineID string) *stubHost {
	return &stubHost{attr: model.HostAttributes{
		Fingerprint: model.MachineFingerprint{MachineID: machineID, CPUID: "GenuineIntel-6-158-10", MACAddress: "001A2B3C4D5E"},
		OSVersion:   "linux 6.1",
		Auxiliary:   "host=test",
	}}
}

func (h *stubHost) Host() model.HostAttributes {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attr
}

func (h *stubHost) setMachine(id string) {
	h.mu.Lock()
	h.attr.Fingerprint.MachineID = id
	h.mu.Unlock()
}

// recordingObserver collects Observer notifications.
type recordingObserver struct {
	mu          sync.Mutex
	logins      []string
	redemptions []string
	logFailures int
}

func (o *recordingObserver) LoginOutcome(s string) {
	o.mu.Lock()
	o.logins = append(o.logins, s)
	o.mu.Unlock()
}

func (o *recordingObserver) Redemption(s string) {
	o.mu.Lock()
	o.redemptions = append(o.redemptions, s)
	o.mu.Unlock()
}

func (o *recordingObserver) AccessLogWriteFailed() {
	o.mu.Lock()
	o.logFailures++
	o.mu.Unlock()
}

func (o *recordingObserver) lastLogin() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.logins) == 0 {
		return ""
	}
	return o.logins[len(o.logins)-1]
}

type fixture struct {
	store *db.BunStore
	clock *ManualClock
	host  *stubHost
	obs   *recordingObserver
	svc   *Services
}

// newFixture wires the core services over a private in-memory sqlite store.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := db.NewStoreFromDSN("sqlite", "file:core_"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStoreFromDSN failed: %v", err)
	}
	bs := s.(*db.BunStore)
	f := &fixture{
		store: bs,
		clock: NewManualClock(testStart),
		host:  newStubHost("MACHINE-A"),
		obs:   &recordingObserver{},
	}
	f.svc = NewServices(bs, f.host, Options{Clock: f.clock, Observer: f.obs})
	t.Cleanup(func() {
		_ = f.svc.Close()
		_ = bs.Close()
	})
	return f
}

// seed adds a product and the given keys to the available pool.
func (f *fixture) seed(t *testing.T, days int, keys ...string) {
	t.Helper()
	ctx := context.Background()
	p, err := f.store.EnsureProduct(ctx, "Premium", testStart)
	if err != nil {
		t.Fatalf("EnsureProduct failed: %v", err)
	}
	var ks []model.AvailableKey
	for _, k := range keys {
		ks = append(ks, model.AvailableKey{KeyValue: k, DurationDays: days, ProductID: p.ID, CreatedAt: testStart})
	}
	if err := f.store.AddAvailableKeys(ctx, ks); err != nil {
		t.Fatalf("AddAvailableKeys failed: %v", err)
	}
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.svc.AccessLog.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}

func assertRejected(t *testing.T, err error, reason error) {
	t.Helper()
	if !IsRejected(err) {
		t.Fatalf("expected *RejectedError, got %T: %v", err, err)
	}
	if !errors.Is(err, reason) {
		t.Fatalf("expected reason %v, got %v", reason, err)
	}
	if IsTransient(err) {
		t.Fatalf("rejection must not be transient: %v", err)
	}
}
