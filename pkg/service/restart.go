// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"sync"
	"time"
)

// RestartDecider decides whether a monitor relaunches its worker after an
// exit. The fault is the error the worker terminated with; it is nil when
// the worker completed normally, and implementations must accept that.
type RestartDecider interface {
	Restartable(fault error) bool
}

// RestartDeciderFunc adapts a function to the RestartDecider interface.
type RestartDeciderFunc func(fault error) bool

// Restartable implements RestartDecider.
func (f RestartDeciderFunc) Restartable(fault error) bool { return f(fault) }

// DefaultRestartDecider treats every worker exit as transient and always
// relaunches. Services that are meant to run until told to stop use this.
type DefaultRestartDecider struct{}

// Restartable implements RestartDecider.
func (DefaultRestartDecider) Restartable(error) bool { return true }

// ThresholdRestartDecider relaunches until too many faults land inside a
// sliding window, then refuses for good. Normal completions are not counted.
// It is safe for use by a single monitor and for concurrent inspection.
type ThresholdRestartDecider struct {
	mu        sync.Mutex
	maxFaults int
	window    time.Duration
	faults    []time.Time
}

// NewThresholdRestartDecider creates a decider that gives up once more than
// maxFaults faulted exits occur within window. Zero values select 5 faults
// in 60 seconds.
func NewThresholdRestartDecider(maxFaults int, window time.Duration) *ThresholdRestartDecider {
	if maxFaults == 0 {
		maxFaults = 5
	}
	if window == 0 {
		window = 60 * time.Second
	}
	return &ThresholdRestartDecider{maxFaults: maxFaults, window: window}
}

// Restartable implements RestartDecider.
func (d *ThresholdRestartDecider) Restartable(fault error) bool {
	if fault == nil {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-d.window)
	kept := d.faults[:0]
	for _, t := range d.faults {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	d.faults = append(kept, now)
	return len(d.faults) <= d.maxFaults
}
