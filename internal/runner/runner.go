package runner

import (
	"context"
	"sync"
	"time"
)

// Runner drives periodic re-measurement and notifies registered listeners on
// every tick. It exists for long-running deployments where the study store
// is mutated between runs (e.g. via the HTTP API) and measurements should
// follow without an explicit trigger.
type Runner struct {
	mu       sync.RWMutex
	Interval time.Duration

	// lastTick tracks when listeners last fired.
	lastTick time.Time

	listeners []func(context.Context, time.Time)
}

// New constructs a runner with the given tick interval.
func New(interval time.Duration) *Runner {
	return &Runner{Interval: interval}
}

// LastTick returns the time of the most recent completed tick, or the zero
// time before the first one.
func (r *Runner) LastTick() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastTick
}

// AddListener registers a callback invoked on every tick. Listeners run
// sequentially on the runner's goroutine; a slow listener delays the next
// tick's callbacks, not the ticker itself.
func (r *Runner) AddListener(fn func(context.Context, time.Time)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Start runs the tick loop in a separate goroutine until ctx is cancelled.
// It returns a channel that is closed when the loop has fully stopped. A
// non-positive interval means no periodic work: the returned channel is
// closed immediately and no listener ever fires.
func (r *Runner) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if r.Interval <= 0 {
		close(done)
		return done
	}
	go func() {
		defer close(done)

		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.mu.RLock()
				listeners := append([]func(context.Context, time.Time){}, r.listeners...)
				r.mu.RUnlock()

				for _, fn := range listeners {
					fn(ctx, now)
				}

				r.mu.Lock()
				r.lastTick = now
				r.mu.Unlock()
			}
		}
	}()
	return done
}
