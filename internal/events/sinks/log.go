package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/events"
)

// LogSink emits one structured log line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		s.logger.Info("event",
			zap.String("type", string(evt.Type)),
			zap.Time("ts", evt.TS),
			zap.String("blog_id", evt.BlogID),
			zap.Int64("post_id", evt.PostID),
			zap.Int64("comment_id", evt.CommentID),
			zap.String("url", evt.URL),
			zap.String("module", evt.Module),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements events.Sink; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
