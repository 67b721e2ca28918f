// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/toeirei/gatekeeper/internal/core"
)

var _ core.Observer = (*Recorder)(nil)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.LoginOutcome(core.OutcomeAccepted)
	r.LoginOutcome(core.OutcomeAccepted)
	r.LoginOutcome(core.OutcomeHardwareMismatch)
	r.Redemption(core.RedemptionAlreadyRedeemed)
	r.AccessLogWriteFailed()

	if got := testutil.ToFloat64(r.loginOutcomes.WithLabelValues(core.OutcomeAccepted)); got != 2 {
		t.Fatalf("accepted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.loginOutcomes.WithLabelValues(core.OutcomeHardwareMismatch)); got != 1 {
		t.Fatalf("hardware_mismatch = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.redemptions.WithLabelValues(core.RedemptionAlreadyRedeemed)); got != 1 {
		t.Fatalf("already_redeemed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.logWriteFailure); got != 1 {
		t.Fatalf("write failures = %v, want 1", got)
	}
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Redemption(core.RedemptionOK)
	if got := testutil.ToFloat64(b.redemptions.WithLabelValues(core.RedemptionOK)); got != 0 {
		t.Fatalf("registries leak between recorders: %v", got)
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	r := New()
	r.LoginOutcome(core.OutcomeExpired)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	want := `gatekeeper_login_outcomes_total{outcome="expired"} 1`
	if !strings.Contains(string(body), want) {
		t.Fatalf("metrics output missing %q", want)
	}
}
