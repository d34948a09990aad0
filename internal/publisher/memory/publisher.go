// Package memory keeps the most recent published event messages in a ring so
// the admin API can show what the blog did lately without a Pub/Sub topic.
package memory

import (
	"context"
	"strconv"
	"sync"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 200

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	ID      string `json:"id"`
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// Publisher remembers the last capacity payloads it received.
type Publisher struct {
	mu   sync.RWMutex
	ring []PublishedMessage
	next int
	seq  uint64
}

// New returns an empty Publisher holding at most capacity messages.
func New(capacity int) *Publisher {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Publisher{ring: make([]PublishedMessage, 0, capacity)}
}

// Publish records the message, evicting the oldest one when full.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	msg := PublishedMessage{ID: "memory-" + strconv.FormatUint(p.seq, 10), Topic: topic, Payload: payload}
	if len(p.ring) < cap(p.ring) {
		p.ring = append(p.ring, msg)
	} else {
		p.ring[p.next] = msg
	}
	p.next = (p.next + 1) % cap(p.ring)
	return msg.ID, nil
}

// Messages returns the retained messages, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, 0, len(p.ring))
	if len(p.ring) == cap(p.ring) {
		out = append(out, p.ring[p.next:]...)
		return append(out, p.ring[:p.next]...)
	}
	return append(out, p.ring...)
}

// Recent returns up to limit messages, newest first. limit <= 0 returns all.
func (p *Publisher) Recent(limit int) []PublishedMessage {
	all := p.Messages()
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]PublishedMessage, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out
}
