package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JakeFAU/inkpress/internal/queue/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunStopsWorkersOnCancel(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	dispatch := New[string](queue, []Worker{&drainWorker{queue: queue}, &drainWorker{queue: queue}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
	assert.Equal(t, -1, dispatch.Pending())
	assert.False(t, dispatch.TryEnqueue("job"))
}

func TestRunDrainsPendingJobs(t *testing.T) {
	t.Parallel()

	queue := memory.NewQueue[int](8)
	var handled atomic.Int32
	worker := &countingWorker{queue: queue, handled: &handled, delay: 5 * time.Millisecond}
	dispatch := New[int](queue, []Worker{worker}, WithDrain(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		require.True(t, dispatch.TryEnqueue(i))
	}
	assert.Equal(t, 5, dispatch.Pending())

	dispatch.Run(ctx)
	assert.Equal(t, 0, dispatch.Pending())
	assert.GreaterOrEqual(t, handled.Load(), int32(4))
}

func TestRunDrainGivesUpAtDeadline(t *testing.T) {
	t.Parallel()

	queue := memory.NewQueue[int](4)
	require.True(t, queue.TryEnqueue(1))
	dispatch := New[int](queue, []Worker{&idleWorker{}}, WithDrain(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	dispatch.Run(ctx)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, dispatch.Pending())
}

func TestEnqueueWrapsErrors(t *testing.T) {
	t.Parallel()

	dispatch := New[string](&errorQueue{err: errors.New("boom")}, nil)
	err := dispatch.Enqueue(context.Background(), "job")
	require.Error(t, err)
	assert.Equal(t, "queue enqueue: boom", err.Error())
}

type drainWorker struct {
	queue Queue[string]
}

func (w *drainWorker) Run(ctx context.Context) {
	for {
		if _, err := w.queue.Dequeue(ctx); err != nil && ctx.Err() != nil {
			return
		}
	}
}

type countingWorker struct {
	queue   Queue[int]
	handled *atomic.Int32
	delay   time.Duration
}

func (w *countingWorker) Run(ctx context.Context) {
	for {
		if _, err := w.queue.Dequeue(ctx); err != nil {
			return
		}
		time.Sleep(w.delay)
		w.handled.Add(1)
	}
}

type idleWorker struct{}

func (idleWorker) Run(ctx context.Context) { <-ctx.Done() }

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(context.Context, string) error {
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return "", fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, string) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (string, error) {
	return "", nil
}
