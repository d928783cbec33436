package controller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Task runs fn on a fixed interval until stopped. Ticks overlapping a
// still-running fn are skipped rather than queued, so a slow request
// never blocks the next scheduled one.
type Task struct {
	interval time.Duration
	fn       func(context.Context)

	inFlight atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

func NewTask(interval time.Duration, fn func(context.Context)) *Task {
	return &Task{interval: interval, fn: fn}
}

// Start launches the tick loop. The first run happens after one interval.
func (t *Task) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !t.inFlight.CompareAndSwap(false, true) {
					continue
				}
				go func() {
					defer t.inFlight.Store(false)
					t.fn(ctx)
				}()
			}
		}
	}()
}

// Stop cancels pending ticks and waits for the loop to exit. A run
// already in flight is cancelled through its context but not waited for.
func (t *Task) Stop() {
	t.once.Do(func() {
		if t.cancel != nil {
			t.cancel()
			<-t.done
		}
	})
}
