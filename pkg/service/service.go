// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package service

import "context"

// State represents the lifecycle state of a service.
type State int

const (
	// StateInitial means the service has never been started.
	StateInitial State = iota

	// StateStarting means the service is starting.
	StateStarting

	// StateStarted means the service is running, as far as we can tell.
	StateStarted

	// StateStopping means the service is stopping.
	StateStopping

	// StateStopped means the service has been stopped.
	StateStopped

	// StateFailed means the service has failed and given up.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Service is the lifecycle contract for supervised components.
type Service interface {
	// Startup starts the service. If it is already running this is a no-op.
	// A stopped or failed service can be started again. Startup returns once
	// the supervision machinery is running; it does not wait for the worker
	// to become operational.
	Startup() error

	// StartStartup initiates startup without waiting.
	StartStartup() error

	// Shutdown stops the service and waits for the worker to terminate. If
	// the service was never started or has already stopped this is a no-op
	// that settles the state to stopped. A failed service is moved to
	// stopped. The context bounds the wait only; an expired context detaches
	// the remaining teardown rather than abandoning it.
	Shutdown(ctx context.Context) error

	// StartShutdown initiates shutdown without waiting for termination.
	StartShutdown() error

	// AwaitShutdown blocks until the service has fully shut down, e.g. in
	// response to a Shutdown call made elsewhere. It returns immediately if
	// the service is not running.
	AwaitShutdown(ctx context.Context) error

	// State returns a best-effort snapshot of the current state.
	State() State
}

// Worker is the supervised unit of work. Run blocks until the context is
// cancelled or the work terminates on its own; a non-nil error is a worker
// fault. Unblock is invoked during shutdown, after cancellation, to force a
// blocking operation that ignores the context to return early, such as
// closing a listening socket the worker is accepting on. Workers with fully
// context-aware blocking points can leave it a no-op.
type Worker interface {
	Run(ctx context.Context) error
	Unblock()
}

// WorkerFunc adapts a bare function to the Worker interface with a no-op
// Unblock.
type WorkerFunc func(ctx context.Context) error

// Run implements Worker.
func (f WorkerFunc) Run(ctx context.Context) error { return f(ctx) }

// Unblock implements Worker.
func (WorkerFunc) Unblock() {}
