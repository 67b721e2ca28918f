// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"errors"
	"time"

	"github.com/toeirei/gatekeeper/internal/logging"
	"github.com/toeirei/gatekeeper/internal/model"
	"github.com/toeirei/gatekeeper/internal/security"
)

// Messages carried by an accepted LoginResult.
const (
	MessageActive         = "subscription active"
	MessageNoSubscription = "no active subscription"
	MessageExpired        = "subscription expired"
)

// LoginResult is an accepted login. Expired logins are authenticated but the
// caller must gate licensed functionality on Expired.
type LoginResult struct {
	AccountID    int64
	Username     string
	Expired      bool
	Message      string
	Subscription *model.Subscription
}

// Validator runs the login state machine.
type Validator struct {
	store   Store
	ledger  *Ledger
	log     *AccessLog
	host    HostSource
	clock   Clock
	obs     Observer
	timeout time.Duration
}

// NewValidator returns a Validator. host supplies the current machine's
// fingerprint for hardware binding.
func NewValidator(store Store, ledger *Ledger, log *AccessLog, host HostSource, opts Options) *Validator {
	opts = opts.withDefaults()
	return &Validator{
		store:   store,
		ledger:  ledger,
		log:     log,
		host:    host,
		clock:   opts.Clock,
		obs:     opts.Observer,
		timeout: opts.SessionTimeout,
	}
}

// Login authenticates username and password on this machine. The steps run
// in order and the first failing step decides the outcome:
//
//  1. credentials must match the stored verifier byte for byte;
//  2. the machine must match the fingerprint of the newest login record, if any;
//  3. the newest active subscription decides Expired, deactivating lapsed
//     records on the way.
//
// Accepted logins are appended to the access log asynchronously. Errors are
// either *RejectedError or *TransientError.
func (v *Validator) Login(ctx context.Context, username string, password security.Secret) (*LoginResult, error) {
	return v.LoginFrom(ctx, username, password, v.host.Host())
}

// LoginFrom is Login for a machine other than the local one, as reported by a
// remote client.
func (v *Validator) LoginFrom(ctx context.Context, username string, password security.Secret, host model.HostAttributes) (*LoginResult, error) {
	if _, ok := ctx.Deadline(); !ok && v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}
	res, err := v.login(ctx, username, password, host)
	v.obs.LoginOutcome(outcomeOf(res, err))
	return res, err
}

func (v *Validator) login(ctx context.Context, username string, password security.Secret, host model.HostAttributes) (*LoginResult, error) {
	given := security.Hash(password)
	acc, err := v.store.GetAccountByUsername(ctx, username)
	if err != nil {
		return nil, transient("login", err)
	}
	if acc == nil || !security.Verifier(acc.PasswordHash).Matches(given) {
		logging.Debugf("login: credential check failed for %q", username)
		return nil, reject(ErrInvalidCredentials)
	}

	bound, err := v.log.MostRecentFingerprint(ctx, acc.ID)
	if err != nil {
		return nil, err
	}
	if bound != nil && bound.MachineID != host.Fingerprint.MachineID {
		logging.Warnf("login: account %s presented a different machine", acc)
		return nil, reject(ErrHardwareMismatch)
	}

	sub, err := v.ledger.LatestSubscription(ctx, acc.ID)
	if err != nil {
		return nil, err
	}
	now := v.clock.Now()
	res := &LoginResult{AccountID: acc.ID, Username: acc.Username, Subscription: sub}
	switch {
	case sub == nil:
		res.Expired = true
		res.Message = MessageNoSubscription
	case sub.ExpiredAt(now):
		if _, err := v.ledger.DeactivateExpired(ctx, acc.ID); err != nil {
			return nil, err
		}
		sub.IsActive = false
		res.Expired = true
		res.Message = MessageExpired
	default:
		res.Message = MessageActive
	}

	v.log.Append(model.LoginRecord{
		AccountID:  acc.ID,
		MachineID:  host.Fingerprint.MachineID,
		CPUID:      host.Fingerprint.CPUID,
		MACAddress: host.Fingerprint.MACAddress,
		OSVersion:  host.OSVersion,
		Auxiliary:  host.Auxiliary,
		LoginTime:  now,
	})
	return res, nil
}

func outcomeOf(res *LoginResult, err error) string {
	switch {
	case err == nil && res.Expired:
		return OutcomeExpired
	case err == nil:
		return OutcomeAccepted
	case errors.Is(err, ErrInvalidCredentials):
		return OutcomeInvalidCredentials
	case errors.Is(err, ErrHardwareMismatch):
		return OutcomeHardwareMismatch
	default:
		return OutcomeTransient
	}
}
