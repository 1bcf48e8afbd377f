// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

// Package service provides self-healing supervision for long-running
// workers: a proxy's accept loop, a watcher, anything that is meant to run
// until told to stop.
//
// # Architecture Overview
//
// A MonitoredService owns a monitor goroutine, and the monitor owns a
// worker goroutine. When the worker dies, by error return or panic, the
// monitor asks a RestartDecider whether to relaunch it. The default policy
// relaunches unconditionally; a stricter policy can refuse, which moves the
// service to the failed state and stops supervision.
//
//	MonitoredService
//	    └── monitor goroutine (relaunch loop)
//	            └── worker goroutine (your Run method)
//
// # Lifecycle
//
// A service moves through the states
//
//	initial → starting → started → stopping → stopped
//	                        │
//	                        └──→ failed (restart refused, or the monitor
//	                             itself died)
//
// Startup is idempotent: on a running service it reasserts started and
// spawns nothing. A stopped or failed service can be started again, which
// begins a fresh supervision lifecycle. Shutdown on a never-started or
// already-stopped service settles the state to stopped and wakes waiters.
//
// Startup returns once the monitor is running; it deliberately does not
// wait for the worker to become operational. A caller that needs "truly
// ready" semantics must use a readiness signal from the worker itself.
//
// # Stopping
//
// Shutdown cancels the worker's context and then calls the worker's Unblock
// hook. The hook exists for blocking operations that ignore contexts: a
// worker blocked in Accept, for example, closes its listener there so the
// accept call returns at once. After the worker has terminated the service
// settles to stopped; a relaunch never follows a shutdown-triggered
// interruption.
//
// Both asynchronous forms, StartStartup and StartShutdown, return without
// waiting; AwaitShutdown blocks until a shutdown initiated anywhere has
// fully completed.
//
// # Example
//
//	svc := service.New(service.Config{
//		Name:    "acls-proxy",
//		Worker:  proxyWorker,
//		Decider: service.NewThresholdRestartDecider(5, time.Minute),
//	})
//	if err := svc.Startup(); err != nil {
//		return err
//	}
//	defer svc.Shutdown(context.Background())
package service
