package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/events"
)

// Publisher pushes payloads to a topic (Pub/Sub or an in-memory recorder).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Message is the JSON payload published for each event.
type Message struct {
	Type      string    `json:"type"`
	TS        time.Time `json:"ts"`
	BlogID    string    `json:"blog_id,omitempty"`
	PostID    int64     `json:"post_id,omitempty"`
	CommentID int64     `json:"comment_id,omitempty"`
	URL       string    `json:"url,omitempty"`
	Title     string    `json:"title,omitempty"`
	Module    string    `json:"module,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// PublisherSink forwards events to a Publisher. Content bodies are not
// published.
type PublisherSink struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublisherSink builds a sink that publishes to topic.
func NewPublisherSink(publisher Publisher, topic string, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes each event; the first failure aborts the batch.
func (s *PublisherSink) Consume(ctx context.Context, batch []events.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	for _, evt := range batch {
		id, err := s.publisher.Publish(ctx, s.topic, toMessage(evt))
		if err != nil {
			return fmt.Errorf("publish %s: %w", evt.Type, err)
		}
		s.logger.Debug("event published", zap.String("type", string(evt.Type)), zap.String("message_id", id))
	}
	return nil
}

// Close implements events.Sink; it performs no action.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}

// EventType exposes the type as a message attribute for publishers that
// support them.
func (m Message) EventType() string {
	return m.Type
}

func toMessage(evt events.Event) Message {
	return Message{
		Type:      string(evt.Type),
		TS:        evt.TS.UTC(),
		BlogID:    evt.BlogID,
		PostID:    evt.PostID,
		CommentID: evt.CommentID,
		URL:       evt.URL,
		Title:     evt.Title,
		Module:    evt.Module,
		Note:      evt.Note,
	}
}
