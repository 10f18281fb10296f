// Package events is the in-process bus the CRM modules talk over. Lead
// intake and status changes publish here and the sequence engine listens to
// start enrollments; the engine in turn publishes when it enrolls a lead or
// finishes an enrollment. The event types themselves live in internal/events.
package events

import (
	"context"
	"time"
)

// Event is something a module reports about a lead or an enrollment.
type Event interface {
	// EventName is "<module>.<entity>.<what happened>", e.g.
	// "sequences.enrollment.completed". Subscriptions match on it.
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent carries the timestamp every event embeds.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps an event with the wall clock.
func NewBaseEvent() BaseEvent {
	return NewBaseEventAt(time.Now())
}

// NewBaseEventAt stamps an event with at, for publishers that run on their
// own clock such as the sequence engine.
func NewBaseEventAt(at time.Time) BaseEvent {
	return BaseEvent{Timestamp: at.UTC()}
}

// Handler reacts to one event name. Publish logs its errors and PublishSync
// returns them.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is an adapter to allow ordinary functions to be used as handlers.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus fans events out to the handlers subscribed to their name.
type Bus interface {
	// Publish hands the event to its handlers in the background. Enrollment
	// transactions publish only after commit, so handlers see committed rows.
	Publish(ctx context.Context, event Event)

	// PublishSync runs the handlers inline and joins their errors.
	PublishSync(ctx context.Context, event Event) error

	Subscribe(eventName string, handler Handler)
}
