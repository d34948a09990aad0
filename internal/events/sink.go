package events

import "context"

// Sink consumes batches of events flushed by the Hub.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}
