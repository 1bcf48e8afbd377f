// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit provides per-facility request rate limiting using the
// token bucket algorithm. A runaway instrument client cannot starve the
// upstream ACLS server for everyone else.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a facility exceeds its request budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// TokenBucket implements the token bucket algorithm.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int64
	tokens     int64
	refillRate int64 // tokens per second
	lastRefill time.Time
}

// NewTokenBucket creates a bucket holding capacity tokens, refilled at
// refillRate tokens per second.
func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow reports whether one request fits the budget.
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN reports whether n requests fit the budget.
func (tb *TokenBucket) AllowN(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}

	return false
}

// refill adds tokens based on elapsed time.
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tokensToAdd := int64(elapsed * float64(tb.refillRate))
	if tokensToAdd > 0 {
		tb.tokens += tokensToAdd
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}
}

// Available returns the number of available tokens.
func (tb *TokenBucket) Available() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return tb.tokens
}

// entry pairs a facility's bucket with its last use, for idle eviction.
type entry struct {
	bucket   *TokenBucket
	lastUsed time.Time
}

// Limiter tracks one token bucket per facility. The facility set is
// bounded by the registry, so the map needs no hard cap; buckets idle
// longer than the eviction interval are dropped and recreated full on the
// facility's next request.
type Limiter struct {
	mu          sync.Mutex
	entries     map[string]*entry
	capacity    int64
	refillRate  int64
	idleTimeout time.Duration
	evictTimer  *time.Timer
	closed      bool
}

// NewLimiter creates a per-facility limiter. An idleTimeout of zero
// defaults to 10 minutes.
func NewLimiter(capacity, refillRate int64, idleTimeout time.Duration) *Limiter {
	if idleTimeout == 0 {
		idleTimeout = 10 * time.Minute
	}

	l := &Limiter{
		entries:     make(map[string]*entry),
		capacity:    capacity,
		refillRate:  refillRate,
		idleTimeout: idleTimeout,
	}
	l.evictTimer = time.AfterFunc(idleTimeout, l.evict)

	return l
}

// Allow reports whether one request from the given facility should be
// allowed.
func (l *Limiter) Allow(facility string) bool {
	return l.AllowN(facility, 1)
}

// AllowN reports whether n requests from the given facility should be
// allowed.
func (l *Limiter) AllowN(facility string, n int64) bool {
	l.mu.Lock()
	e, ok := l.entries[facility]
	if !ok {
		e = &entry{bucket: NewTokenBucket(l.capacity, l.refillRate)}
		l.entries[facility] = e
	}
	e.lastUsed = time.Now()
	l.mu.Unlock()

	return e.bucket.AllowN(n)
}

// evict drops buckets that have been idle for a full interval.
func (l *Limiter) evict() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	cutoff := time.Now().Add(-l.idleTimeout)
	for facility, e := range l.entries {
		if e.lastUsed.Before(cutoff) {
			delete(l.entries, facility)
		}
	}

	l.evictTimer = time.AfterFunc(l.idleTimeout, l.evict)
}

// Stats returns the number of facilities currently tracked.
func (l *Limiter) Stats() (facilities int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close stops the eviction timer.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.evictTimer != nil {
		l.evictTimer.Stop()
	}
}
