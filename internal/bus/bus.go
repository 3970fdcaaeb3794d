// Package bus provides the async event bus between the assistant process,
// the platform listener, and the rendering orchestrator.
package bus

import (
	"context"
	"time"

	"github.com/ThreadClaw/ThreadClaw/internal/platform"
	"github.com/ThreadClaw/ThreadClaw/internal/stream"
)

// AssistantEvent is one decoded stream event bound to its conversation.
type AssistantEvent struct {
	ConversationID string
	ThreadID       string
	TraceID        string
	Event          stream.Event
	Timestamp      time.Time
}

// EventBus decouples producers from the orchestrator. Channels are buffered
// so a slow platform call never blocks the stream reader.
type EventBus struct {
	events    chan *AssistantEvent
	reactions chan *platform.ReactionEvent
}

// NewEventBus creates a bus with default buffer sizes.
func NewEventBus() *EventBus {
	return &EventBus{
		events:    make(chan *AssistantEvent, 256),
		reactions: make(chan *platform.ReactionEvent, 64),
	}
}

// PublishEvent enqueues an assistant event.
func (b *EventBus) PublishEvent(ev *AssistantEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.events <- ev
}

// ConsumeEvent blocks until an assistant event is available or ctx ends.
func (b *EventBus) ConsumeEvent(ctx context.Context) (*AssistantEvent, error) {
	select {
	case ev := <-b.events:
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PublishReaction enqueues a user reaction transition.
func (b *EventBus) PublishReaction(ev *platform.ReactionEvent) {
	b.reactions <- ev
}

// ConsumeReaction blocks until a reaction is available or ctx ends.
func (b *EventBus) ConsumeReaction(ctx context.Context) (*platform.ReactionEvent, error) {
	select {
	case ev := <-b.reactions:
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EventBacklog returns the number of pending assistant events.
func (b *EventBus) EventBacklog() int { return len(b.events) }

// ReactionBacklog returns the number of pending reactions.
func (b *EventBus) ReactionBacklog() int { return len(b.reactions) }
