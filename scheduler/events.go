package scheduler

import "time"

// EventKind identifies a file-level scheduling transition, published on
// the Scheduler's events.Sink — the scheduler half of the TaskHandler
// progress-reporting collaborator interface from spec.md §6.
type EventKind string

const (
	EventQueued    EventKind = "queued"
	EventStarted   EventKind = "started"
	EventPaused    EventKind = "paused"
	EventResumed   EventKind = "resumed"
	EventCompleted EventKind = "completed"
	EventCancelled EventKind = "cancelled"
	EventFailed    EventKind = "failed"
)

// Event is published for every file state transition. It satisfies
// docker/go-events' Event interface (interface{}) structurally.
type Event struct {
	Kind  EventKind
	JobID string
	URL   string
	At    time.Time
	Err   error
}
