// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/toeirei/gatekeeper/internal/core"
	"github.com/toeirei/gatekeeper/internal/fingerprint"
	"github.com/toeirei/gatekeeper/internal/httpapi"
	"github.com/toeirei/gatekeeper/internal/security"
	"github.com/toeirei/gatekeeper/internal/testutil"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newServices(t *testing.T, prefix string, host fingerprint.Provider) *core.Services {
	t.Helper()
	st := testutil.NewStore(t, prefix)
	testutil.SeedKeys(t, st, "Premium", 30, testNow, "K1", "K2")
	svc := core.NewServices(st, host, core.Options{Clock: core.NewManualClock(testNow)})
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func newLocal(t *testing.T) Client {
	t.Helper()
	c, err := NewLocalClient(newServices(t, "client_local", fingerprint.NewStatic("CLIENT-1")))
	if err != nil {
		t.Fatalf("NewLocalClient failed: %v", err)
	}
	return c
}

func newRemote(t *testing.T) Client {
	t.Helper()
	svc := newServices(t, "client_http", fingerprint.NewStatic("SERVER"))
	ts := httptest.NewServer(httpapi.New(svc, nil))
	t.Cleanup(ts.Close)

	cfg := NewDefaultConfig()
	cfg.BaseURL = ts.URL + "/"
	c, err := NewHTTPClient(cfg, fingerprint.NewStatic("CLIENT-1"))
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func reg(user, pw, confirm, key string) Registration {
	return Registration{
		Username: user,
		Password: security.FromString(pw),
		Confirm:  security.FromString(confirm),
		Key:      key,
	}
}

// Both transports must behave identically, including the error taxonomy.
func TestClients_AccountLifecycle(t *testing.T) {
	for name, factory := range map[string]func(*testing.T) Client{
		"local": newLocal,
		"http":  newRemote,
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := factory(t)

			if err := c.Health(ctx); err != nil {
				t.Fatalf("Health failed: %v", err)
			}

			id, err := c.Register(ctx, reg("alice", "pw", "pw", "K1"))
			if err != nil || id <= 0 {
				t.Fatalf("Register = %d, %v", id, err)
			}
			_, err = c.Register(ctx, reg("bob", "pw", "pw", "K1"))
			if !errors.Is(err, core.ErrAlreadyRedeemed) || !core.IsRejected(err) {
				t.Fatalf("expected rejected ErrAlreadyRedeemed, got %v", err)
			}
			_, err = c.Register(ctx, reg("bob", "pw", "other", "K2"))
			if !errors.Is(err, core.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput for mismatched confirmation, got %v", err)
			}
			_, err = c.Register(ctx, reg("alice", "pw", "pw", "K2"))
			if !errors.Is(err, core.ErrUsernameTaken) {
				t.Fatalf("expected ErrUsernameTaken, got %v", err)
			}

			s, err := c.Login(ctx, "alice", security.FromString("pw"))
			if err != nil {
				t.Fatalf("Login failed: %v", err)
			}
			if s.AccountID != id || !s.Active() || s.Message != core.MessageActive {
				t.Fatalf("unexpected session: %+v", s)
			}
			if want := testNow.AddDate(0, 0, 30); !s.Subscription.ExpiresAt.Equal(want) {
				t.Fatalf("expires at %v, want %v", s.Subscription.ExpiresAt, want)
			}
			if _, err := c.Login(ctx, "alice", security.FromString("nope")); !errors.Is(err, core.ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}

			sub, err := c.Redeem(ctx, id, "K2")
			if err != nil || sub.ExpiresAt.Before(testNow) {
				t.Fatalf("Redeem = %+v, %v", sub, err)
			}
			if _, err := c.Redeem(ctx, id+100, "K2"); !core.IsRejected(err) {
				t.Fatalf("expected a rejection for a consumed key, got %v", err)
			}

			subs, err := c.Subscriptions(ctx, id)
			if err != nil || len(subs) != 2 || subs[0].ProductName != "Premium" {
				t.Fatalf("Subscriptions = %+v, %v", subs, err)
			}
		})
	}
}

func TestHTTPClient_UnknownAccount(t *testing.T) {
	c := newRemote(t)
	_, err := c.Redeem(context.Background(), 42, "K1")
	if !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestHTTPClient_TransientFailures(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"temporarily unavailable","retryable":true}`))
	}))
	defer ts.Close()

	cfg := NewDefaultConfig()
	cfg.BaseURL = ts.URL
	c, err := NewHTTPClient(cfg, fingerprint.NewStatic("M"))
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	_, err = c.Login(context.Background(), "alice", security.FromString("pw"))
	if !core.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected wrapped APIError, got %v", err)
	}

	ts.Close()
	if err := c.Health(context.Background()); !core.IsTransient(err) {
		t.Fatalf("expected transient error for unreachable server, got %v", err)
	}
}

func TestHTTPClient_UnmappedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "teapot", http.StatusTeapot)
	}))
	defer ts.Close()

	cfg := NewDefaultConfig()
	cfg.BaseURL = ts.URL
	c, _ := NewHTTPClient(cfg, fingerprint.NewStatic("M"))
	err := c.Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTeapot || core.IsRejected(err) || core.IsTransient(err) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewHTTPClient_Validation(t *testing.T) {
	for _, u := range []string{"", "ftp://host", "http://", "::"} {
		cfg := NewDefaultConfig()
		cfg.BaseURL = u
		if _, err := NewHTTPClient(cfg, fingerprint.NewStatic("M")); err == nil {
			t.Errorf("expected error for base url %q", u)
		}
	}
	if _, err := NewHTTPClient(NewDefaultConfig(), nil); err == nil {
		t.Errorf("expected error for missing host provider")
	}
	if _, err := NewLocalClient(nil); err == nil {
		t.Errorf("expected error for missing services")
	}
}
