// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for the ACLS proxy.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the proxy.
type Metrics struct {
	// Session metrics
	ActiveSessions  *prometheus.GaugeVec
	SessionsTotal   *prometheus.CounterVec
	SessionDuration *prometheus.HistogramVec

	// Protocol metrics
	RequestsTotal   *prometheus.CounterVec
	ResponsesTotal  *prometheus.CounterVec
	DecodeErrors    *prometheus.CounterVec
	RefusedRequests *prometheus.CounterVec

	// Rate limiter metrics
	RateLimitedRequests *prometheus.CounterVec

	// Upstream server metrics
	TransactionsTotal   *prometheus.CounterVec
	TransactionDuration prometheus.Histogram

	// Supervision metrics
	ServiceState   *prometheus.GaugeVec
	WorkerRestarts *prometheus.CounterVec

	// Circuit breaker metrics
	BreakerState *prometheus.GaugeVec
	BreakerTrips *prometheus.CounterVec
}

// New creates a Metrics instance with all counters, gauges, and histograms
// registered on the default registerer.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "aclsproxy"
	}

	m := &Metrics{
		ActiveSessions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of currently active client sessions",
			},
			[]string{"facility"},
		),
		SessionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of client sessions",
			},
			[]string{"facility", "status"},
		),
		SessionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Client session duration in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 600},
			},
			[]string{"facility"},
		),
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of client requests by request type",
			},
			[]string{"type"},
		),
		ResponsesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_total",
				Help:      "Total number of responses relayed by response type",
			},
			[]string{"type"},
		),
		DecodeErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decode_errors_total",
				Help:      "Total number of message decode failures by fault kind",
			},
			[]string{"kind"},
		),
		RefusedRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refused_requests_total",
				Help:      "Total number of requests the proxy refused itself",
			},
			[]string{"reason"},
		),
		RateLimitedRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_requests_total",
				Help:      "Total number of requests dropped by the rate limiter",
			},
			[]string{"facility"},
		),
		TransactionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "server_transactions_total",
				Help:      "Total number of upstream server transactions by outcome",
			},
			[]string{"outcome"},
		),
		TransactionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "server_transaction_duration_seconds",
				Help:      "Upstream server transaction duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ServiceState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "service_state",
				Help:      "Supervised service state (0=initial, 1=starting, 2=started, 3=stopping, 4=stopped, 5=failed)",
			},
			[]string{"service"},
		),
		WorkerRestarts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_restarts_total",
				Help:      "Total number of worker relaunches by the supervisor",
			},
			[]string{"service"},
		),
		BreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half_open, 2=open)",
			},
			[]string{"backend"},
		),
		BreakerTrips: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"backend"},
		),
	}

	return m
}

// ObserveSession tracks a client session lifecycle.
func (m *Metrics) ObserveSession(facility string, f func() error) error {
	m.ActiveSessions.WithLabelValues(facility).Inc()
	defer m.ActiveSessions.WithLabelValues(facility).Dec()

	start := time.Now()
	defer func() {
		duration := time.Since(start).Seconds()
		m.SessionDuration.WithLabelValues(facility).Observe(duration)
	}()

	err := f()
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SessionsTotal.WithLabelValues(facility, status).Inc()

	return err
}

// ObserveTransaction tracks one upstream server transaction. The outcome
// label is supplied by the caller, which knows how the fault classified.
func (m *Metrics) ObserveTransaction(f func() (outcome string, err error)) error {
	start := time.Now()

	outcome, err := f()
	duration := time.Since(start).Seconds()

	m.TransactionsTotal.WithLabelValues(outcome).Inc()
	m.TransactionDuration.Observe(duration)

	return err
}
