package nats

import (
	"time"
)

// HeadEvent announces that the chain head advanced.
// It is published to the subject "solexplorer.head" in JetStream.
type HeadEvent struct {
	Slot uint64 `json:"slot"`

	// Timestamp is when the watcher observed the new head.
	Timestamp time.Time `json:"timestamp"`

	// Skipped counts slots between the previous event and this one.
	Skipped uint64 `json:"skipped"`

	PublishedAt time.Time `json:"published_at"`
}

// NewHeadEvent builds the event for a head that moved from prev to slot.
// A zero prev means no head was seen before.
func NewHeadEvent(slot, prev uint64, observedAt time.Time) *HeadEvent {
	event := &HeadEvent{
		Slot:      slot,
		Timestamp: observedAt.UTC(),
	}
	if prev != 0 && slot > prev+1 {
		event.Skipped = slot - prev - 1
	}
	return event
}
