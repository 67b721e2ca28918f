// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import "time"

// DefaultSessionTimeout bounds a login when the caller's context carries no
// deadline.
const DefaultSessionTimeout = 10 * time.Second

// DefaultRedeemTimeout bounds a key redemption the same way.
const DefaultRedeemTimeout = 10 * time.Second

// Options configures the core services. Zero values select the defaults.
type Options struct {
	Clock           Clock
	Observer        Observer
	SessionTimeout  time.Duration
	RedeemTimeout   time.Duration
	LogWriteTimeout time.Duration
	LogQueueSize    int
}

func (o Options) withDefaults() Options {
	o.Clock = clockOrSystem(o.Clock)
	o.Observer = observerOrNop(o.Observer)
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = DefaultSessionTimeout
	}
	if o.RedeemTimeout <= 0 {
		o.RedeemTimeout = DefaultRedeemTimeout
	}
	if o.LogWriteTimeout <= 0 {
		o.LogWriteTimeout = DefaultLogWriteTimeout
	}
	if o.LogQueueSize <= 0 {
		o.LogQueueSize = DefaultLogQueueSize
	}
	return o
}

// Services bundles the ledger, the access log and the session validator over
// one store.
type Services struct {
	Ledger    *Ledger
	AccessLog *AccessLog
	Validator *Validator
}

// NewServices wires the core services together.
func NewServices(store Store, host HostSource, opts Options) *Services {
	opts = opts.withDefaults()
	ledger := NewLedger(store, opts.Clock, opts.Observer)
	ledger.timeout = opts.RedeemTimeout
	log := NewAccessLog(store, opts)
	return &Services{
		Ledger:    ledger,
		AccessLog: log,
		Validator: NewValidator(store, ledger, log, host, opts),
	}
}

// Close stops the access log writer after draining pending records.
func (s *Services) Close() error {
	return s.AccessLog.Close()
}
