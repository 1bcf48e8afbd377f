// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

// Package health provides liveness and readiness endpoints for the proxy
// daemon, built from named, TTL-cached checks.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/crawley/ACLS-protocol-library/pkg/service"
)

// Status represents the health status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the reported result of a single health check.
type Check struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Message     string    `json:"message,omitempty"`
	LastChecked time.Time `json:"last_checked"`
	DurationMS  float64   `json:"duration_ms"`
}

// CheckFunc performs one health check.
type CheckFunc func(ctx context.Context) error

// ServiceCheck reports the supervised service healthy only while it is
// started. A failed, stopping, or stopped service fails readiness so a
// load balancer drains the instance.
func ServiceCheck(svc service.Service) CheckFunc {
	return func(ctx context.Context) error {
		if st := svc.State(); st != service.StateStarted {
			return fmt.Errorf("service state is %s", st)
		}
		return nil
	}
}

// DialCheck reports whether addr accepts TCP connections within timeout.
// Used against the upstream ACLS server.
func DialCheck(addr string, timeout time.Duration) CheckFunc {
	return func(ctx context.Context) error {
		dialer := net.Dialer{Timeout: timeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("dial %s: %w", addr, err)
		}
		return conn.Close()
	}
}

// Checker manages named health checks with a result cache.
type Checker struct {
	mu     sync.Mutex
	checks map[string]CheckFunc
	cache  map[string]*Check
	ttl    time.Duration
}

// NewChecker creates a checker. A cacheTTL of zero defaults to 10s.
func NewChecker(cacheTTL time.Duration) *Checker {
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Second
	}
	return &Checker{
		checks: make(map[string]CheckFunc),
		cache:  make(map[string]*Check),
		ttl:    cacheTTL,
	}
}

// Register adds a health check under the given name.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Health runs (or serves from cache) every registered check and aggregates
// an overall status: healthy when everything passes, unhealthy when
// everything fails, degraded in between.
func (c *Checker) Health(ctx context.Context) (Status, []Check) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var checks []Check
	failed := 0

	for name, checkFunc := range c.checks {
		if cached, ok := c.cache[name]; ok && time.Since(cached.LastChecked) < c.ttl {
			checks = append(checks, *cached)
			if cached.Status != StatusHealthy {
				failed++
			}
			continue
		}

		start := time.Now()
		err := checkFunc(ctx)
		duration := time.Since(start)

		check := &Check{
			Name:        name,
			LastChecked: time.Now(),
			DurationMS:  float64(duration) / float64(time.Millisecond),
		}
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
			failed++
		} else {
			check.Status = StatusHealthy
		}

		c.cache[name] = check
		checks = append(checks, *check)
	}

	switch {
	case failed == 0:
		return StatusHealthy, checks
	case failed == len(checks):
		return StatusUnhealthy, checks
	default:
		return StatusDegraded, checks
	}
}

// HTTPHandler serves the overall health report. Degraded still answers
// 200: a partially healthy instance keeps accepting traffic.
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status, checks := c.Health(ctx)

		writeReport(w, status, checks, status == StatusUnhealthy)
	}
}

// ReadinessHandler serves a readiness probe: anything short of fully
// healthy answers 503.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status, checks := c.Health(ctx)

		writeReport(w, status, checks, status != StatusHealthy)
	}
}

// LivenessHandler answers as long as the process serves HTTP at all.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
		})
	}
}

func writeReport(w http.ResponseWriter, status Status, checks []Check, unavailable bool) {
	w.Header().Set("Content-Type", "application/json")
	if unavailable {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}
