package store

import "time"

// EventKind identifies a Directory Store lifecycle transition.
type EventKind string

const (
	EventInstalling EventKind = "installing"
	EventInstalled  EventKind = "installed"
	EventVerifying  EventKind = "verifying"
	EventVerified   EventKind = "verified"
	EventMismatch   EventKind = "mismatch"
	EventRemoving   EventKind = "removing"
	EventRemoved    EventKind = "removed"
)

// Event is published on the Store's events.Sink (Events()) for every
// install/verify/remove transition. It satisfies docker/go-events' Event
// interface (an empty interface{}) structurally.
type Event struct {
	Kind   EventKind
	Digest string
	At     time.Time
	Err    error
}
