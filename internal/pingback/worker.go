package pingback

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/dispatcher"
	"github.com/JakeFAU/inkpress/internal/queue/memory"
)

// Outcomes reported to the Observer.
const (
	ResultSent    = "sent"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// JobSender delivers one job.
type JobSender interface {
	Send(ctx context.Context, job Job) error
}

// Observer is told the outcome of each outbound job.
type Observer func(result string)

// WorkerConfig controls retries.
type WorkerConfig struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

// Worker consumes outbound jobs and retries transient failures with
// exponential backoff.
type Worker struct {
	queue   dispatcher.Queue[Job]
	sender  JobSender
	cfg     WorkerConfig
	observe Observer
	logger  *zap.Logger
}

var _ dispatcher.Worker = (*Worker)(nil)

// NewWorker constructs a Worker.
func NewWorker(queue dispatcher.Queue[Job], sender JobSender, cfg WorkerConfig, observe Observer, logger *zap.Logger) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if observe == nil {
		observe = func(string) {}
	}
	return &Worker{queue: queue, sender: sender, cfg: cfg, observe: observe, logger: logger}
}

// Run blocks, consuming jobs until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, memory.ErrClosed) {
				return
			}
			w.logger.Error("pingback dequeue failed", zap.Error(err))
			continue
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	delay := w.cfg.Backoff
	for attempt := 1; ; attempt++ {
		err := w.sender.Send(ctx, job)
		if err == nil {
			w.logger.Info("pingback sent", zap.String("source", job.Source), zap.String("target", job.Target))
			w.observe(ResultSent)
			return
		}
		if IsPermanent(err) {
			w.logger.Debug("pingback skipped",
				zap.String("source", job.Source), zap.String("target", job.Target), zap.Error(err))
			w.observe(ResultSkipped)
			return
		}
		if attempt >= w.cfg.MaxAttempts || ctx.Err() != nil {
			w.logger.Warn("pingback failed",
				zap.String("source", job.Source), zap.String("target", job.Target),
				zap.Int("attempts", attempt), zap.Error(err))
			w.observe(ResultFailed)
			return
		}
		if !sleep(ctx, delay) {
			w.observe(ResultFailed)
			return
		}
		delay = min(delay*2, w.cfg.MaxBackoff)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
