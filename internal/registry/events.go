package registry

import (
	"context"

	"github.com/zjrosen/arbiter/internal/log"
	"github.com/zjrosen/arbiter/internal/pubsub"
)

// Event types published by the registry.
const (
	EventRegistered   pubsub.EventType = "registered"
	EventOverridden   pubsub.EventType = "overridden"
	EventIgnored      pubsub.EventType = "ignored"
	EventRejected     pubsub.EventType = "rejected"
	EventConflict     pubsub.EventType = "conflict"
	EventUnregistered pubsub.EventType = "unregistered"
)

// Event describes one change to, or decision by, the registry.
type Event struct {
	Type          pubsub.EventType
	Kind          Kind
	ResourceID    string
	Owner         string
	PreviousOwner string
	Message       string
	// Action is the resolved MergeResult action; empty for conflict and
	// unregistered events.
	Action        Action
	Conflict      *Conflict
}

// Observer receives every registry event synchronously.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Subscribe streams registry events until ctx is cancelled. Slow
// subscribers lose events rather than block registration.
func (r *Registry) Subscribe(ctx context.Context) <-chan pubsub.Event[Event] {
	return r.broker.Subscribe(ctx)
}

// emit logs, observes and publishes events. Callers must not hold r.mu.
func (r *Registry) emit(events []Event) {
	for _, e := range events {
		switch e.Type {
		case EventConflict:
			c := e.Conflict
			log.Warn(log.CatRegistry, "Conflict detected",
				"kind", c.Kind, "id", c.ResourceID,
				"existing", c.ExistingOwner, "claimant", c.NewOwner)
		case EventRejected:
			log.Warn(log.CatRegistry, "Registration rejected", "kind", e.Kind, "id", e.ResourceID, "owner", e.Owner)
		default:
			log.Debug(log.CatRegistry, "Registry event", "type", e.Type, "kind", e.Kind, "id", e.ResourceID, "owner", e.Owner)
		}

		for _, o := range r.observers {
			o.Observe(e)
		}
		r.broker.Publish(e.Type, e)
	}
}

func resultEvent(res MergeResult, owner, previous string) Event {
	e := Event{
		Kind:          res.Kind,
		ResourceID:    res.ResourceID,
		Owner:         owner,
		PreviousOwner: previous,
		Message:       res.Message,
		Action:        res.Action,
	}
	switch res.Action {
	case ActionRegistered:
		e.Type = EventRegistered
	case ActionOverridden:
		e.Type = EventOverridden
	case ActionIgnored:
		e.Type = EventIgnored
	default:
		e.Type = EventRejected
	}
	return e
}
