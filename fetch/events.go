package fetch

import "time"

// EventKind identifies a fetch-level lifecycle transition, aggregating
// the finer-grained scheduler and store events into the single surface
// spec.md §6's TaskHandler (starting_extraction, starting_manifest,
// run_task) describes, expressed here as an event sink rather than a
// callback interface — the same decoupling the teacher's notifications
// package gives registry event producers and consumers.
type EventKind string

const (
	EventSkip        EventKind = "skip"
	EventPlan        EventKind = "plan"
	EventDownloading EventKind = "downloading"
	EventExtracting  EventKind = "extracting"
	EventVerifying   EventKind = "verifying"
	EventInstalled   EventKind = "installed"
	EventFailed      EventKind = "failed"
)

// Event is published on the Fetcher's events.Sink for every
// Implementation it processes.
type Event struct {
	Kind   EventKind
	Digest string
	At     time.Time
	Err    error
}
