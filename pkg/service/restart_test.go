// Copyright (c) CMM, University of Queensland
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultRestartDecider(t *testing.T) {
	d := DefaultRestartDecider{}
	if !d.Restartable(errors.New("fault")) {
		t.Error("Expected the default decider to allow restart after a fault")
	}
	if !d.Restartable(nil) {
		t.Error("Expected the default decider to allow restart after completion")
	}
}

func TestRestartDeciderFunc(t *testing.T) {
	var seen error
	d := RestartDeciderFunc(func(fault error) bool {
		seen = fault
		return false
	})

	fault := errors.New("fault")
	if d.Restartable(fault) {
		t.Error("Expected the adapted function's verdict")
	}
	if !errors.Is(seen, fault) {
		t.Errorf("Expected the adapted function to see the fault, got %v", seen)
	}
}

func TestThresholdRestartDecider_RefusesAfterLimit(t *testing.T) {
	d := NewThresholdRestartDecider(2, time.Hour)
	fault := errors.New("fault")

	if !d.Restartable(fault) {
		t.Error("Expected the first fault to be restartable")
	}
	if !d.Restartable(fault) {
		t.Error("Expected the second fault to be restartable")
	}
	if d.Restartable(fault) {
		t.Error("Expected the third fault within the window to be refused")
	}
}

func TestThresholdRestartDecider_CompletionNotCounted(t *testing.T) {
	d := NewThresholdRestartDecider(1, time.Hour)

	// Normal completions never count against the fault budget.
	for i := 0; i < 10; i++ {
		if !d.Restartable(nil) {
			t.Fatalf("Expected completion %d to be restartable", i)
		}
	}

	if !d.Restartable(errors.New("fault")) {
		t.Error("Expected the first fault to be restartable")
	}
}

func TestThresholdRestartDecider_WindowExpires(t *testing.T) {
	d := NewThresholdRestartDecider(1, 50*time.Millisecond)
	fault := errors.New("fault")

	if !d.Restartable(fault) {
		t.Error("Expected the first fault to be restartable")
	}
	if d.Restartable(fault) {
		t.Error("Expected the second immediate fault to be refused")
	}

	time.Sleep(100 * time.Millisecond)
	if !d.Restartable(fault) {
		t.Error("Expected a fault after the window expired to be restartable")
	}
}

func TestNewThresholdRestartDecider_Defaults(t *testing.T) {
	d := NewThresholdRestartDecider(0, 0)
	fault := errors.New("fault")

	// Default budget is five faults per window.
	for i := 0; i < 5; i++ {
		if !d.Restartable(fault) {
			t.Fatalf("Expected fault %d to be restartable", i)
		}
	}
	if d.Restartable(fault) {
		t.Error("Expected the sixth fault to be refused")
	}
}
