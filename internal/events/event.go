// Package events carries domain notifications (posts published, comments
// received, modules toggled) from request handlers to asynchronous sinks.
package events

import (
	"errors"
	"fmt"
	"time"
)

// Type names the kind of notification carried by an Event.
type Type string

// Supported event types.
const (
	PostCreated      Type = "post.created"
	PostPublished    Type = "post.published"
	PostDeleted      Type = "post.deleted"
	CommentCreated   Type = "comment.created"
	PingbackReceived Type = "pingback.received"
	ModuleChanged    Type = "module.changed"
)

// Event is one notification. Fields are plain values so sinks do not need to
// know about storage types.
type Event struct {
	// Type is the notification kind.
	Type Type
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// BlogID scopes blog events; empty for module events.
	BlogID string
	// PostID identifies the post for post and comment events.
	PostID int64
	// CommentID identifies the comment for comment and pingback events.
	CommentID int64
	// URL is the public permalink of the post, or the source of a pingback.
	URL string
	// Title is a short human label.
	Title string
	// Content carries the post XHTML for PostPublished so links can be pinged.
	Content string
	// Module is the module id for ModuleChanged.
	Module string
	// Note lets emitters attach low-volume context (e.g. "activate").
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Type {
	case PostCreated, PostPublished, PostDeleted:
		if e.BlogID == "" || e.PostID == 0 {
			return errors.New("post events require blog and post ids")
		}
	case CommentCreated, PingbackReceived:
		if e.BlogID == "" || e.PostID == 0 {
			return errors.New("comment events require blog and post ids")
		}
	case ModuleChanged:
		if e.Module == "" {
			return errors.New("module event requires module id")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// Emitter accepts events without blocking.
type Emitter interface {
	Emit(evt Event)
}

// Nop discards every event.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(Event) {}
