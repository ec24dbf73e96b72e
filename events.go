package session

import (
	"context"
	"time"
)

// EventType enumerates the session-wide signals the transport publishes.
type EventType string

const (
	// EventTokenExpired fires when a refresh failed and the session is gone.
	EventTokenExpired EventType = "session.token.expired"
	// EventVerificationRequired fires when the service rejected a call
	// because the account email is not verified.
	EventVerificationRequired EventType = "session.verification.required"
)

// Event carries an asynchronous session signal from the transport layer to
// whoever subscribed, decoupling it from the UI layer.
type Event struct {
	Type       EventType
	Email      string
	Metadata   map[string]any
	OccurredAt time.Time
}

// EventSink consumes session events. The Manager is the intended subscriber.
type EventSink interface {
	Record(ctx context.Context, event Event) error
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, event Event) error

// Record implements EventSink.
func (f EventSinkFunc) Record(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopEventSink struct{}

func (noopEventSink) Record(context.Context, Event) error {
	return nil
}

func normalizeEventSink(s EventSink) EventSink {
	if s == nil {
		return noopEventSink{}
	}
	return s
}
