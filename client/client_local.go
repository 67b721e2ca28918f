// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package client

import (
	"context"
	"errors"

	"github.com/toeirei/gatekeeper/internal/core"
	"github.com/toeirei/gatekeeper/internal/security"
)

// LocalClient runs every call in process against the core services. The
// services own the store; Close does not release it.
type LocalClient struct {
	svc *core.Services
}

// *LocalClient implements Client
var _ Client = (*LocalClient)(nil)

// NewLocalClient wraps svc.
func NewLocalClient(svc *core.Services) (*LocalClient, error) {
	if svc == nil {
		return nil, errors.New("services are required")
	}
	return &LocalClient{svc: svc}, nil
}

func (c *LocalClient) Close(ctx context.Context) error { return nil }

func (c *LocalClient) Health(ctx context.Context) error { return nil }

func (c *LocalClient) Login(ctx context.Context, username string, password security.Secret) (Session, error) {
	res, err := c.svc.Validator.Login(ctx, username, password)
	if err != nil {
		return Session{}, err
	}
	s := Session{
		AccountID: res.AccountID,
		Username:  res.Username,
		Expired:   res.Expired,
		Message:   res.Message,
	}
	if res.Subscription != nil {
		s.Subscription = &Subscription{ProductID: res.Subscription.ProductID, ExpiresAt: res.Subscription.ExpiresAt}
	}
	return s, nil
}

func (c *LocalClient) Register(ctx context.Context, r Registration) (int64, error) {
	return c.svc.Ledger.Register(ctx, core.Registration{
		Username: r.Username,
		Password: r.Password,
		Confirm:  r.Confirm,
		Key:      r.Key,
	})
}

func (c *LocalClient) Redeem(ctx context.Context, accountID int64, key string) (Subscription, error) {
	sub, err := c.svc.Ledger.Redeem(ctx, key, accountID)
	if err != nil {
		return Subscription{}, err
	}
	return Subscription{ProductID: sub.ProductID, ExpiresAt: sub.ExpiresAt}, nil
}

func (c *LocalClient) Subscriptions(ctx context.Context, accountID int64) ([]Subscription, error) {
	subs, err := c.svc.Ledger.ActiveSubscriptions(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make([]Subscription, 0, len(subs))
	for _, s := range subs {
		out = append(out, Subscription{ProductID: s.ProductID, ProductName: s.ProductName, ExpiresAt: s.ExpiresAt})
	}
	return out, nil
}
