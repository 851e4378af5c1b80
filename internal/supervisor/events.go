package supervisor

import "time"

// EventKind classifies a supervisor event.
type EventKind string

const (
	EventLog       EventKind = "log"       // one line of backend output
	EventExit      EventKind = "exit"      // backend process exited
	EventError     EventKind = "error"     // supervisor-level failure
	EventUnhealthy EventKind = "unhealthy" // periodic health probe failed
)

// Event is a single item on the supervisor's event stream. Hosts consume the
// stream to mirror backend output into their own UI and to react to exits.
type Event struct {
	Kind     EventKind `json:"kind"`
	Time     time.Time `json:"time"`
	Level    string    `json:"level,omitempty"`   // log events: "info" (stdout) or "error" (stderr)
	Message  string    `json:"message,omitempty"` // log line or error text
	ExitCode int       `json:"exit_code,omitempty"`
}

// eventBuffer is the capacity of the event channel. A slow or absent consumer
// must never block the pipe readers, so emit drops when the buffer is full.
const eventBuffer = 64

func (s *Supervisor) emit(e Event) {
	e.Time = time.Now()
	select {
	case s.events <- e:
	default:
	}
}
