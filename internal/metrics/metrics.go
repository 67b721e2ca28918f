// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

// Package metrics counts login, redemption and access log outcomes on a
// private Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gatekeeper"

// Recorder implements core.Observer.
type Recorder struct {
	registry        *prometheus.Registry
	loginOutcomes   *prometheus.CounterVec
	redemptions     *prometheus.CounterVec
	logWriteFailure prometheus.Counter
}

// New registers the Gatekeeper counters, plus the Go and process collectors,
// on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		loginOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_outcomes_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemptions_total",
			Help:      "Key redemptions by result.",
		}, []string{"result"}),
		logWriteFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_log_write_failures_total",
			Help:      "Login records that could not be persisted.",
		}),
	}
	r.registry.MustRegister(
		r.loginOutcomes,
		r.redemptions,
		r.logWriteFailure,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// LoginOutcome counts one login attempt.
func (r *Recorder) LoginOutcome(outcome string) { r.loginOutcomes.WithLabelValues(outcome).Inc() }

// Redemption counts one redemption attempt.
func (r *Recorder) Redemption(result string) { r.redemptions.WithLabelValues(result).Inc() }

// AccessLogWriteFailed counts one dropped login record.
func (r *Recorder) AccessLogWriteFailed() { r.logWriteFailure.Inc() }

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
