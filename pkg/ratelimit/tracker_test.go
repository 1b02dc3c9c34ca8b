package ratelimit

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestTracker(now *time.Time) *Tracker {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(logger)
	tracker.SetClock(func() time.Time { return *now })
	return tracker
}

func TestTracker_ReserveWithinBudget(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(&now)
	tracker.Observe(500, 1000, 50)

	for _, cost := range []float64{1, 100, 499, 500} {
		if wait := tracker.Reserve(cost); wait != 0 {
			t.Errorf("Reserve(%v) = %v, want 0", cost, wait)
		}
	}
}

func TestTracker_ReserveDoesNotDecrement(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(&now)
	tracker.Observe(100, 1000, 50)

	for i := 0; i < 5; i++ {
		if wait := tracker.Reserve(100); wait != 0 {
			t.Fatalf("Reserve() call %d = %v, want 0", i, wait)
		}
	}
	if got := tracker.State().Available; got != 100 {
		t.Errorf("Available = %v, want 100 (unchanged)", got)
	}
}

func TestTracker_ReserveDecreasesAsTimeElapses(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := start
	tracker := newTestTracker(&now)
	tracker.Observe(0, 1000, 50)

	const cost = 400
	previous := tracker.Reserve(cost)
	if previous <= 0 {
		t.Fatalf("Reserve(%v) = %v, want > 0", cost, previous)
	}

	for _, elapsed := range []time.Duration{time.Second, 3 * time.Second, 7 * time.Second} {
		now = start.Add(elapsed)
		wait := tracker.Reserve(cost)
		if wait <= 0 {
			t.Fatalf("Reserve(%v) after %v = %v, want > 0", cost, elapsed, wait)
		}
		if wait >= previous {
			t.Errorf("Reserve(%v) after %v = %v, want < %v", cost, elapsed, wait, previous)
		}
		previous = wait
	}

	now = start.Add(8 * time.Second)
	if wait := tracker.Reserve(cost); wait != 0 {
		t.Errorf("Reserve(%v) after full refill = %v, want 0", cost, wait)
	}
}

func TestTracker_ObserveOverwritesEstimate(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tracker := newTestTracker(&now)
	tracker.Observe(1000, 1000, 50)

	now = now.Add(10 * time.Second)
	tracker.Observe(20, 0, 50)

	state := tracker.State()
	if state.Available != 20 {
		t.Errorf("Available = %v, want 20", state.Available)
	}
	if state.Maximum != 1000 {
		t.Errorf("Maximum = %v, want 1000 (kept)", state.Maximum)
	}
	if !state.ObservedAt.Equal(now) {
		t.Errorf("ObservedAt = %v, want %v", state.ObservedAt, now)
	}
	if wait := tracker.Reserve(120); wait != 2*time.Second+SafetyMargin {
		t.Errorf("Reserve(120) = %v, want %v", wait, 2*time.Second+SafetyMargin)
	}
}

func TestTracker_UnknownBudgetNeverWaits(t *testing.T) {
	now := time.Now()
	tracker := newTestTracker(&now)
	if wait := tracker.Reserve(1000); wait != 0 {
		t.Errorf("Reserve() before first observation = %v, want 0", wait)
	}
}
