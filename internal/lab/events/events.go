package events

import (
	"context"
	"time"
)

// Event is a request lifecycle notification
type Event struct {
	Type        string    `json:"event"`
	RequestID   string    `json:"request_id"`
	RequesterID string    `json:"requester_id"`
	Action      string    `json:"action"`
	FromStatus  string    `json:"from_status,omitempty"`
	ToStatus    string    `json:"to_status,omitempty"`
	OperatorID  string    `json:"operator_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// EventTypeRequestUpdate is the SSE event name for request changes
const EventTypeRequestUpdate = "request_update"

// Publisher delivers events; implementations must not block the caller for long
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi fans an event out to every publisher and returns the first error
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var first error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Nop discards events
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
