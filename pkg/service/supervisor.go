// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrNoWorker is returned when a service is started without a worker.
	ErrNoWorker = errors.New("no worker configured")
)

// Config holds the configuration for a monitored service.
type Config struct {
	// Name labels the service in logs.
	Name string

	// Worker is the supervised unit of work.
	Worker Worker

	// Decider is consulted after every worker exit. Nil selects the default
	// policy of relaunching unconditionally.
	Decider RestartDecider

	// Logger for lifecycle events
	Logger *slog.Logger
}

// MonitoredService runs a worker under a monitor goroutine and restarts the
// worker when it dies, as long as the restart decider approves. It
// implements the Service lifecycle contract.
//
// At most one monitor and, under it, at most one worker exist at any
// instant. All state and the monitor handle are guarded by one mutex, so
// concurrent lifecycle calls never leave two monitors alive.
type MonitoredService struct {
	name    string
	worker  Worker
	decider RestartDecider
	logger  *slog.Logger

	mu     sync.Mutex
	state  State
	mon    *monitor
	notify chan struct{}
}

var _ Service = (*MonitoredService)(nil)

// New creates a monitored service for the given worker.
func New(cfg Config) *MonitoredService {
	if cfg.Decider == nil {
		cfg.Decider = DefaultRestartDecider{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "service"
	}

	return &MonitoredService{
		name:    cfg.Name,
		worker:  cfg.Worker,
		decider: cfg.Decider,
		logger:  cfg.Logger,
		state:   StateInitial,
		notify:  make(chan struct{}),
	}
}

// Startup starts the monitor if none is alive. Calling it on a running
// service reasserts the started state without spawning a second monitor.
func (s *MonitoredService) Startup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.worker == nil {
		return ErrNoWorker
	}
	if s.mon != nil && s.mon.alive() {
		s.state = StateStarted
		s.logger.Info("already running", "service", s.name)
		return nil
	}

	s.logger.Info("starting up", "service", s.name)
	s.state = StateStarting
	mon := &monitor{
		svc:  s,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	s.mon = mon
	go mon.run()
	s.state = StateStarted
	return nil
}

// StartStartup initiates startup. Startup itself only waits for the monitor
// hand-off, so the two forms behave identically.
func (s *MonitoredService) StartStartup() error {
	return s.Startup()
}

// Shutdown interrupts the monitor and waits until the worker has terminated
// and the state has settled to stopped. When the context expires first, the
// remaining teardown is detached so state and waiters still settle, and the
// context error is returned.
func (s *MonitoredService) Shutdown(ctx context.Context) error {
	mon := s.beginShutdown()
	if mon == nil {
		return nil
	}

	select {
	case <-mon.done:
		s.finalizeShutdown(mon)
		return nil
	case <-ctx.Done():
		go func() {
			<-mon.done
			s.finalizeShutdown(mon)
		}()
		return ctx.Err()
	}
}

// StartShutdown interrupts the monitor and detaches a helper to finalize the
// state once the worker has terminated.
func (s *MonitoredService) StartShutdown() error {
	mon := s.beginShutdown()
	if mon == nil {
		return nil
	}

	go func() {
		<-mon.done
		s.finalizeShutdown(mon)
	}()
	return nil
}

// beginShutdown moves the service to stopping and signals the monitor. It
// returns nil when there is nothing to stop; the state is settled and
// waiters are woken before returning.
func (s *MonitoredService) beginShutdown() *monitor {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mon == nil {
		s.state = StateStopped
		s.broadcastLocked()
		s.logger.Info("already shut down", "service", s.name)
		return nil
	}

	s.logger.Info("shutting down", "service", s.name)
	s.state = StateStopping
	s.mon.signalStop()
	return s.mon
}

// finalizeShutdown clears the monitor handle once the monitor has exited and
// wakes shutdown waiters. A monitor superseded by a newer startup is left
// alone.
func (s *MonitoredService) finalizeShutdown(mon *monitor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mon != mon {
		return
	}
	s.mon = nil
	s.state = StateStopped
	s.broadcastLocked()
	s.logger.Info("shutdown complete", "service", s.name)
}

// AwaitShutdown blocks until no monitor is registered, i.e. until a shutdown
// initiated here or elsewhere has fully completed.
func (s *MonitoredService) AwaitShutdown(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.mon == nil {
			s.mu.Unlock()
			return nil
		}
		ch := s.notify
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// State returns a snapshot of the current lifecycle state.
func (s *MonitoredService) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *MonitoredService) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// broadcastLocked wakes every AwaitShutdown waiter. Callers hold s.mu.
func (s *MonitoredService) broadcastLocked() {
	close(s.notify)
	s.notify = make(chan struct{})
}

// monitor is one supervision lifecycle: it relaunches the worker until the
// restart decider refuses or a stop is signalled. done is closed when the
// monitor goroutine exits, whatever the reason.
type monitor struct {
	svc      *MonitoredService
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// cancel interrupts the current worker. Touched only by the monitor
	// goroutine, including its recover path.
	cancel context.CancelFunc
}

// alive reports whether the monitor goroutine is still running.
func (mon *monitor) alive() bool {
	select {
	case <-mon.done:
		return false
	default:
		return true
	}
}

// signalStop tells the monitor to stop supervising. Idempotent.
func (mon *monitor) signalStop() {
	mon.stopOnce.Do(func() {
		close(mon.stop)
	})
}

func (mon *monitor) run() {
	s := mon.svc
	defer close(mon.done)
	defer func() {
		// A fault escaping the supervision loop itself, not the worker:
		// interrupt the worker so it is not orphaned, and give up.
		if r := recover(); r != nil {
			s.logger.Error("monitor failed", "service", s.name, "panic", r)
			if mon.cancel != nil {
				mon.cancel()
			}
			s.setState(StateFailed)
		}
	}()

	for {
		select {
		case <-mon.stop:
			s.setState(StateStopped)
			return
		default:
		}

		ctx, cancel := context.WithCancel(context.Background())
		mon.cancel = cancel
		fault := make(chan error, 1)
		go runWorker(ctx, s.worker, fault)

		select {
		case <-mon.stop:
			// Shutdown was signalled: interrupt the worker, force any
			// blocking operation to return, and wait for it to actually
			// terminate before settling the state.
			cancel()
			s.worker.Unblock()
			<-fault
			s.setState(StateStopped)
			return
		case err := <-fault:
			cancel()
			if err != nil {
				s.logger.Error("worker terminated", "service", s.name, "error", err)
			}
			if !s.decider.Restartable(err) {
				s.logger.Error("worker not restartable, giving up", "service", s.name)
				s.setState(StateFailed)
				return
			}
			s.logger.Info("relaunching worker", "service", s.name)
		}
	}
}

// runWorker runs one worker incarnation and reports how it ended. A panic in
// the worker is reported as a fault rather than taking the process down.
func runWorker(ctx context.Context, w Worker, fault chan<- error) {
	defer func() {
		if r := recover(); r != nil {
			fault <- fmt.Errorf("worker panic: %v", r)
		}
	}()
	fault <- w.Run(ctx)
}
