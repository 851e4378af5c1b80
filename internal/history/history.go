package history

import (
	"context"
	"time"
)

// EventType defines the kind of backend lifecycle event.
type EventType string

const (
	EventStart     EventType = "start"
	EventStop      EventType = "stop"
	EventExit      EventType = "exit"
	EventUnhealthy EventType = "unhealthy"
)

// Record captures the supervisor state at the moment an event occurred.
type Record struct {
	Name   string `json:"name"`
	PID    int    `json:"pid"`
	Port   int    `json:"port"`
	Detail string `json:"detail,omitempty"`
}

// Event represents a lifecycle event to be persisted or exported.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for lifecycle events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
