// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

// Package breaker provides a circuit breaker guarding transactions against
// the upstream ACLS server. When the server stops answering, the breaker
// opens and callers fail fast instead of tying up a connection slot per
// doomed attempt; after a cool-down a probe transaction decides whether to
// close it again.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker refuses a call outright.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config holds breaker configuration. Zero values select the defaults
// noted on each field.
type Config struct {
	// MaxFailures is the number of consecutive failures before the
	// breaker opens. Defaults to 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before letting a
	// probe call through. Defaults to 60s.
	ResetTimeout time.Duration

	// SuccessThreshold is the number of consecutive probe successes that
	// close the breaker again. Defaults to 2.
	SuccessThreshold int

	// IsFailure decides whether an error counts against the failure
	// budget. A nil IsFailure counts every error. The ACLS client uses
	// this to keep refusals from a reachable server out of the budget:
	// only transport-level faults say anything about server health.
	IsFailure func(err error) bool
}

// Breaker is a three-state circuit breaker. It is safe for concurrent use.
type Breaker struct {
	mu              sync.RWMutex
	config          Config
	state           State
	failures        int
	successes       int
	lastStateChange time.Time
	onStateChange   func(from, to State)
}

// New creates a breaker, filling in defaults for zero config fields.
func New(config Config) *Breaker {
	if config.MaxFailures == 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout == 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}

	return &Breaker{
		config:          config,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Call executes fn if the breaker allows it and records the outcome.
// When the breaker is open, Call returns ErrOpen without invoking fn.
func (b *Breaker) Call(fn func() error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn()

	b.afterCall(err)
	return err
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.lastStateChange) > b.config.ResetTimeout {
			b.setState(StateHalfOpen)
			return nil
		}
		return ErrOpen

	case StateHalfOpen, StateClosed:
		return nil

	default:
		return ErrOpen
	}
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && b.config.IsFailure(err) {
		b.onFailure()
	} else {
		b.onSuccess()
	}
}

func (b *Breaker) onFailure() {
	b.failures++
	b.successes = 0

	switch b.state {
	case StateClosed:
		if b.failures >= b.config.MaxFailures {
			b.setState(StateOpen)
		}

	case StateHalfOpen:
		// A failed probe reopens immediately.
		b.setState(StateOpen)
	}
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		b.failures = 0

	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.setState(StateClosed)
		}
	}
}

func (b *Breaker) setState(newState State) {
	if b.state == newState {
		return
	}

	oldState := b.state
	b.state = newState
	b.lastStateChange = time.Now()

	if newState == StateClosed {
		b.failures = 0
		b.successes = 0
	} else if newState == StateHalfOpen {
		b.successes = 0
	}

	// The callback runs outside the lock so it may call back in.
	if b.onStateChange != nil {
		go b.onStateChange(oldState, newState)
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// OnStateChange registers a callback invoked on every state transition.
func (b *Breaker) OnStateChange(fn func(from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Stats returns the current state and failure/success counters.
func (b *Breaker) Stats() (state State, failures, successes int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state, b.failures, b.successes
}
