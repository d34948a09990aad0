package pingback

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/inkpress/internal/events"
)

// Enqueuer accepts jobs without blocking.
type Enqueuer interface {
	TryEnqueue(job Job) bool
}

// Permalinker builds the absolute URL of a post from its type and URL.
type Permalinker interface {
	Permalink(blogID, postType, postURL string) string
}

// Sink turns post.published events into outbound jobs for every external
// link of the post.
type Sink struct {
	queue   Enqueuer
	links   Permalinker
	observe Observer
	logger  *zap.Logger
}

var _ events.Sink = (*Sink)(nil)

// NewSink builds a Sink.
func NewSink(queue Enqueuer, links Permalinker, observe Observer, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observe == nil {
		observe = func(string) {}
	}
	return &Sink{queue: queue, links: links, observe: observe, logger: logger}
}

// Consume enqueues jobs. A full queue drops jobs with a warning.
func (s *Sink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		if evt.Type != events.PostPublished || evt.Content == "" {
			continue
		}
		source := s.links.Permalink(evt.BlogID, evt.Note, evt.URL)
		for _, target := range ExternalLinks(evt.Content, source) {
			job := Job{Source: source, Target: target}
			if !s.queue.TryEnqueue(job) {
				s.logger.Warn("pingback queue full, dropping job",
					zap.String("source", source), zap.String("target", target))
				s.observe(ResultSkipped)
			}
		}
	}
	return nil
}

// Close implements events.Sink; it performs no action.
func (s *Sink) Close(context.Context) error {
	return nil
}
