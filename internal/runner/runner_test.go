package runner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunnerTicksListeners(t *testing.T) {
	r := New(5 * time.Millisecond)

	var ticks atomic.Int64
	r.AddListener(func(ctx context.Context, now time.Time) {
		ticks.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := r.Start(ctx)

	deadline := time.After(2 * time.Second)
	for ticks.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d ticks observed before deadline", ticks.Load())
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("runner did not stop after cancellation")
	}

	if r.LastTick().IsZero() {
		t.Errorf("LastTick is zero after ticks fired")
	}
}

func TestRunnerNonPositiveIntervalNeverTicks(t *testing.T) {
	r := New(0)

	var ticks atomic.Int64
	r.AddListener(func(context.Context, time.Time) {
		ticks.Add(1)
	})

	done := r.Start(context.Background())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("runner with non-positive interval did not stop immediately")
	}
	if n := ticks.Load(); n != 0 {
		t.Fatalf("listener fired %d times, want 0", n)
	}
}

func TestRunnerStopsWithoutListeners(t *testing.T) {
	r := New(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := r.Start(ctx)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("runner did not stop after cancellation")
	}
}
