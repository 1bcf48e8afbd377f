// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// fakeWorker blocks until cancelled unless runFn overrides the behaviour of
// a given incarnation.
type fakeWorker struct {
	mu        sync.Mutex
	runs      int
	unblocked int
	runFn     func(ctx context.Context, run int) error
}

func (w *fakeWorker) Run(ctx context.Context) error {
	w.mu.Lock()
	w.runs++
	run := w.runs
	fn := w.runFn
	w.mu.Unlock()

	if fn != nil {
		return fn(ctx, run)
	}
	<-ctx.Done()
	return nil
}

func (w *fakeWorker) Unblock() {
	w.mu.Lock()
	w.unblocked++
	w.mu.Unlock()
}

func (w *fakeWorker) runCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

func (w *fakeWorker) unblockCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unblocked
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Condition not reached: %s", msg)
}

func TestMonitoredService_StartupShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	worker := &fakeWorker{}
	svc := New(Config{Name: "test", Worker: worker, Logger: quietLogger()})

	if got := svc.State(); got != StateInitial {
		t.Errorf("Expected %v before startup, got %v", StateInitial, got)
	}

	if err := svc.Startup(); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	if got := svc.State(); got != StateStarted {
		t.Errorf("Expected %v after startup, got %v", StateStarted, got)
	}
	waitFor(t, func() bool { return worker.runCount() == 1 }, "worker launched")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := svc.State(); got != StateStopped {
		t.Errorf("Expected %v after shutdown, got %v", StateStopped, got)
	}
}

func TestMonitoredService_StartupIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	worker := &fakeWorker{}
	svc := New(Config{Name: "test", Worker: worker, Logger: quietLogger()})

	if err := svc.Startup(); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	if err := svc.Startup(); err != nil {
		t.Fatalf("Second Startup() error = %v", err)
	}
	waitFor(t, func() bool { return worker.runCount() == 1 }, "worker launched")

	// A second monitor would launch a second worker; give it room to show.
	time.Sleep(50 * time.Millisecond)
	if got := worker.runCount(); got != 1 {
		t.Errorf("Expected a single worker launch, got %d", got)
	}

	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestMonitoredService_ShutdownNeverStarted(t *testing.T) {
	svc := New(Config{Name: "test", Worker: &fakeWorker{}, Logger: quietLogger()})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := svc.State(); got != StateStopped {
		t.Errorf("Expected %v, got %v", StateStopped, got)
	}

	// AwaitShutdown must not block either.
	if err := svc.AwaitShutdown(ctx); err != nil {
		t.Errorf("AwaitShutdown() error = %v", err)
	}
}

func TestMonitoredService_RestartsFaultedWorker(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	worker := &fakeWorker{
		runFn: func(ctx context.Context, run int) error {
			if run == 1 {
				return errors.New("listener exploded")
			}
			<-ctx.Done()
			return nil
		},
	}
	svc := New(Config{Name: "test", Worker: worker, Logger: quietLogger()})

	if err := svc.Startup(); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}

	waitFor(t, func() bool { return worker.runCount() >= 2 }, "worker relaunched after fault")
	if got := svc.State(); got != StateStarted {
		t.Errorf("Expected %v while relaunched worker runs, got %v", StateStarted, got)
	}

	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestMonitoredService_RestartsAfterNormalCompletion(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// The default policy relaunches even when the worker finished without a
	// fault: the service is meant to run until told to stop.
	worker := &fakeWorker{
		runFn: func(ctx context.Context, run int) error {
			if run <= 2 {
				return nil
			}
			<-ctx.Done()
			return nil
		},
	}
	svc := New(Config{Name: "test", Worker: worker, Logger: quietLogger()})

	if err := svc.Startup(); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}

	waitFor(t, func() bool { return worker.runCount() >= 3 }, "worker relaunched after completion")

	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestMonitoredService_RefusedRestartFails(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var decided error
	worker := &fakeWorker{
		runFn: func(ctx context.Context, run int) error {
			return errors.New("bind: address already in use")
		},
	}
	svc := New(Config{
		Name:   "test",
		Worker: worker,
		Decider: RestartDeciderFunc(func(fault error) bool {
			decided = fault
			return false
		}),
		Logger: quietLogger(),
	})

	if err := svc.Startup(); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}

	waitFor(t, func() bool { return svc.State() == StateFailed }, "service failed")
	if decided == nil {
		t.Error("Expected the decider to see the worker fault")
	}

	// No respawn may follow a refusal.
	time.Sleep(50 * time.Millisecond)
	if got := worker.runCount(); got != 1 {
		t.Errorf("Expected a single worker launch, got %d", got)
	}

	// A failed service settles to stopped via shutdown.
	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := svc.State(); got != StateStopped {
		t.Errorf("Expected %v, got %v", StateStopped, got)
	}
}

func TestMonitoredService_WorkerPanicIsAFault(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var decided error
	worker := &fakeWorker{
		runFn: func(ctx context.Context, run int) error {
			panic("nil map write")
		},
	}
	svc := New(Config{
		Name:   "test",
		Worker: worker,
		Decider: RestartDeciderFunc(func(fault error) bool {
			decided = fault
			return false
		}),
		Logger: quietLogger(),
	})

	if err := svc.Startup(); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}

	waitFor(t, func() bool { return svc.State() == StateFailed }, "service failed")
	if decided == nil {
		t.Fatal("Expected the decider to see the panic as a fault")
	}

	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestMonitoredService_UnblocksStuckWorker(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// The worker ignores its context entirely; only the unblock hook can
	// release it, the way closing a listener releases a blocked accept.
	release := make(chan struct{})
	worker := &hookWorker{release: release}
	svc := New(Config{Name: "test", Worker: worker, Logger: quietLogger()})

	if err := svc.Startup(); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	waitFor(t, func() bool { return worker.running() }, "worker blocked")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := svc.State(); got != StateStopped {
		t.Errorf("Expected %v, got %v", StateStopped, got)
	}
}

// hookWorker blocks on a channel that only Unblock closes.
type hookWorker struct {
	mu      sync.Mutex
	started bool
	release chan struct{}
}

func (w *hookWorker) Run(ctx context.Context) error {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	<-w.release
	return nil
}

func (w *hookWorker) Unblock() {
	close(w.release)
}

func (w *hookWorker) running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

func TestMonitoredService_ShutdownDeadlineDetaches(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	worker := &fakeWorker{
		runFn: func(ctx context.Context, run int) error {
			<-ctx.Done()
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	svc := New(Config{Name: "test", Worker: worker, Logger: quietLogger()})

	if err := svc.Startup(); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	waitFor(t, func() bool { return worker.runCount() == 1 }, "worker launched")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := svc.Shutdown(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline error, got %v", err)
	}

	// The detached teardown still settles the state and wakes waiters.
	waitFor(t, func() bool { return svc.State() == StateStopped }, "state settled")
	if err := svc.AwaitShutdown(context.Background()); err != nil {
		t.Errorf("AwaitShutdown() error = %v", err)
	}
}

func TestMonitoredService_StartShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	worker := &fakeWorker{}
	svc := New(Config{Name: "test", Worker: worker, Logger: quietLogger()})

	if err := svc.Startup(); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	waitFor(t, func() bool { return worker.runCount() == 1 }, "worker launched")

	if err := svc.StartShutdown(); err != nil {
		t.Fatalf("StartShutdown() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.AwaitShutdown(ctx); err != nil {
		t.Fatalf("AwaitShutdown() error = %v", err)
	}
	if got := svc.State(); got != StateStopped {
		t.Errorf("Expected %v, got %v", StateStopped, got)
	}
}

func TestMonitoredService_AwaitShutdownWakesOnRemoteShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	worker := &fakeWorker{}
	svc := New(Config{Name: "test", Worker: worker, Logger: quietLogger()})

	if err := svc.Startup(); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	waitFor(t, func() bool { return worker.runCount() == 1 }, "worker launched")

	waited := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		waited <- svc.AwaitShutdown(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	select {
	case err := <-waited:
		if err != nil {
			t.Errorf("AwaitShutdown() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitShutdown() did not wake after Shutdown()")
	}
}

func TestMonitoredService_RestartAfterFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	worker := &fakeWorker{
		runFn: func(ctx context.Context, run int) error {
			if run == 1 {
				return errors.New("first run fault")
			}
			<-ctx.Done()
			return nil
		},
	}
	svc := New(Config{
		Name:    "test",
		Worker:  worker,
		Decider: RestartDeciderFunc(func(error) bool { return false }),
		Logger:  quietLogger(),
	})

	if err := svc.Startup(); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	waitFor(t, func() bool { return svc.State() == StateFailed }, "service failed")

	// A failed service begins a fresh supervision lifecycle on startup.
	if err := svc.Startup(); err != nil {
		t.Fatalf("Startup() after failure error = %v", err)
	}
	waitFor(t, func() bool { return worker.runCount() == 2 }, "fresh worker launched")
	if got := svc.State(); got != StateStarted {
		t.Errorf("Expected %v, got %v", StateStarted, got)
	}

	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestMonitoredService_NoWorker(t *testing.T) {
	svc := New(Config{Name: "test", Logger: quietLogger()})
	if err := svc.Startup(); !errors.Is(err, ErrNoWorker) {
		t.Fatalf("Expected ErrNoWorker, got %v", err)
	}
	if got := svc.State(); got != StateInitial {
		t.Errorf("Expected %v, got %v", StateInitial, got)
	}
}

func TestWorkerFunc(t *testing.T) {
	called := false
	w := WorkerFunc(func(ctx context.Context) error {
		called = true
		return nil
	})
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !called {
		t.Error("Expected the adapted function to run")
	}
	w.Unblock() // no-op, must not panic
}
