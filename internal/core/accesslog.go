// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"sync"
	"time"

	"github.com/toeirei/gatekeeper/internal/logging"
	"github.com/toeirei/gatekeeper/internal/model"
)

// Defaults for the access log writer.
const (
	DefaultLogWriteTimeout = 5 * time.Second
	DefaultLogQueueSize    = 64
)

// AccessLog is the append-only login history. Appends are fire-and-forget:
// a worker goroutine drains a buffered queue and a full queue falls back to a
// detached write. Each write runs under its own timeout so a slow backend
// never holds up a login.
type AccessLog struct {
	store   Store
	timeout time.Duration
	obs     Observer

	queue chan queuedRecord
	done  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	seq     uint64
	pending map[int64]pendingFingerprint

	closeOnce sync.Once
}

type queuedRecord struct {
	rec model.LoginRecord
	seq uint64
}

// pendingFingerprint is the newest fingerprint appended for an account that
// has not reached the store yet.
type pendingFingerprint struct {
	seq uint64
	fp  model.MachineFingerprint
}

// NewAccessLog starts the writer goroutine. Call Close to stop it.
func NewAccessLog(store Store, opts Options) *AccessLog {
	opts = opts.withDefaults()
	a := &AccessLog{
		store:   store,
		timeout: opts.LogWriteTimeout,
		obs:     observerOrNop(opts.Observer),
		queue:   make(chan queuedRecord, opts.LogQueueSize),
		done:    make(chan struct{}),
		pending: make(map[int64]pendingFingerprint),
	}
	go a.run()
	return a
}

func (a *AccessLog) run() {
	defer close(a.done)
	for q := range a.queue {
		a.write(q)
	}
}

// Append records a login. It never blocks on the store and never fails; write
// errors are logged and counted.
func (a *AccessLog) Append(rec model.LoginRecord) {
	a.mu.Lock()
	a.seq++
	q := queuedRecord{rec: rec, seq: a.seq}
	a.pending[rec.AccountID] = pendingFingerprint{seq: q.seq, fp: rec.Fingerprint()}
	a.wg.Add(1)
	if !a.closed {
		select {
		case a.queue <- q:
			a.mu.Unlock()
			return
		default:
		}
	}
	a.mu.Unlock()
	go a.write(q)
}

func (a *AccessLog) write(q queuedRecord) {
	defer a.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if _, err := a.store.AppendLoginRecord(ctx, q.rec); err != nil {
		a.obs.AccessLogWriteFailed()
		logging.Warnf("access log: write for account %d failed: %v", q.rec.AccountID, err)
	}

	a.mu.Lock()
	if p, ok := a.pending[q.rec.AccountID]; ok && p.seq == q.seq {
		delete(a.pending, q.rec.AccountID)
	}
	a.mu.Unlock()
}

// MostRecentFingerprint returns the fingerprint of the account's newest login
// record, or nil when the account has never logged in. Appends still in
// flight count as newest.
func (a *AccessLog) MostRecentFingerprint(ctx context.Context, accountID int64) (*model.MachineFingerprint, error) {
	a.mu.Lock()
	p, ok := a.pending[accountID]
	a.mu.Unlock()
	if ok {
		fp := p.fp
		return &fp, nil
	}

	rec, err := a.store.MostRecentLoginRecord(ctx, accountID)
	if err != nil {
		return nil, transient("most recent fingerprint", err)
	}
	if rec == nil {
		return nil, nil
	}
	fp := rec.Fingerprint()
	return &fp, nil
}

// Flush waits until every append made so far has been written or has failed.
func (a *AccessLog) Flush(ctx context.Context) error {
	ch := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and stops the worker. Appends after Close are still
// written, each on its own goroutine.
func (a *AccessLog) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
		<-a.done
	})
	a.wg.Wait()
	return nil
}
