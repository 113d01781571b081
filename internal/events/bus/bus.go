// Package bus defines the in-process event bus used to fan control-plane
// events (agent output, task mutations, checkpoint writes) out to the
// WebSocket layer, with an optional NATS mirror for multi-listener
// deployments.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope published on every subject.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent builds an Event with a fresh id and the current timestamp.
func NewEvent(eventType, source string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Handler processes an event delivered on a subscription.
type Handler func(event *Event)

// Subscription is a handle that can be unsubscribed.
type Subscription interface {
	Unsubscribe() error
}

// EventBus is the publish/subscribe abstraction shared by every component
// that needs to announce or observe control-plane activity.
type EventBus interface {
	Publish(ctx context.Context, subject string, event *Event) error
	Subscribe(subject string, handler Handler) (Subscription, error)
	QueueSubscribe(subject, queue string, handler Handler) (Subscription, error)
	Request(ctx context.Context, subject string, event *Event, timeout time.Duration) (*Event, error)
	Close() error
	IsConnected() bool
}
