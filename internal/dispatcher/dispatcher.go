// Package dispatcher runs a pool of background workers over a shared job
// queue and lets them drain pending jobs on shutdown.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const drainPoll = 20 * time.Millisecond

// Queue is the job source shared by the workers.
type Queue[T any] interface {
	Enqueue(ctx context.Context, item T) error
	Dequeue(ctx context.Context) (T, error)
}

// Worker consumes jobs until its context ends.
type Worker interface {
	Run(ctx context.Context)
}

type lener interface {
	Len() int
}

type tryEnqueuer[T any] interface {
	TryEnqueue(item T) bool
}

// Dispatcher owns the worker pool.
type Dispatcher[T any] struct {
	queue   Queue[T]
	workers []Worker
	drain   time.Duration
}

// Option customizes a Dispatcher.
type Option func(*settings)

type settings struct {
	drain time.Duration
}

// WithDrain keeps workers running for up to d after the run context ends,
// or until the queue reports no pending jobs. Queues without a Len method
// are not drained.
func WithDrain(d time.Duration) Option {
	return func(s *settings) { s.drain = d }
}

// New creates a Dispatcher.
func New[T any](queue Queue[T], workers []Worker, opts ...Option) *Dispatcher[T] {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	return &Dispatcher[T]{queue: queue, workers: workers, drain: s.drain}
}

// Run starts all workers and blocks until ctx ends, the drain window closes
// and every worker has returned.
func (d *Dispatcher[T]) Run(ctx context.Context) {
	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk Worker) {
			defer wg.Done()
			wk.Run(workCtx)
		}(w)
	}
	<-ctx.Done()
	d.waitDrained()
	cancel()
	wg.Wait()
}

func (d *Dispatcher[T]) waitDrained() {
	l, ok := d.queue.(lener)
	if !ok || d.drain <= 0 || len(d.workers) == 0 {
		return
	}
	deadline := time.NewTimer(d.drain)
	defer deadline.Stop()
	tick := time.NewTicker(drainPoll)
	defer tick.Stop()
	for l.Len() > 0 {
		select {
		case <-deadline.C:
			return
		case <-tick.C:
		}
	}
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher[T]) Enqueue(ctx context.Context, item T) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// TryEnqueue adds item only when the queue has room now. Queues without a
// non-blocking path always report false.
func (d *Dispatcher[T]) TryEnqueue(item T) bool {
	q, ok := d.queue.(tryEnqueuer[T])
	return ok && q.TryEnqueue(item)
}

// Pending reports queued jobs, or -1 when the queue cannot tell.
func (d *Dispatcher[T]) Pending() int {
	if l, ok := d.queue.(lener); ok {
		return l.Len()
	}
	return -1
}
