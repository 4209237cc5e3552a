// Package pubsub provides a generic publish/subscribe event system used to
// fan registry activity and log lines out to independent consumers.
package pubsub

import (
	"context"
	"time"
)

// EventType names what happened. Producers define their own values.
type EventType string

// Event is a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}

// Forward delivers every event from sub to fn until ctx is cancelled or the
// subscription channel closes. It blocks; run it in a goroutine.
func Forward[T any](ctx context.Context, sub Subscriber[T], fn func(Event[T])) {
	ch := sub.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			fn(event)
		}
	}
}
