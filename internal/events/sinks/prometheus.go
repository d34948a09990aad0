package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/inkpress/internal/events"
)

// PrometheusSink counts events by type.
type PrometheusSink struct {
	total *prometheus.CounterVec
}

// NewPrometheusSink registers the collector against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inkpress_events_total",
			Help: "Domain events flushed by the event hub, labeled by type.",
		}, []string{"type"}),
	}
	if err := reg.Register(s.total); err != nil {
		return nil, fmt.Errorf("register events collector: %w", err)
	}
	return s, nil
}

// Consume increments the counter for every event.
func (s *PrometheusSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		s.total.WithLabelValues(string(evt.Type)).Inc()
	}
	return nil
}

// Close implements events.Sink; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
