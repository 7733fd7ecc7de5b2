package domain

import (
	"time"

	"github.com/aerosuite/platform/pkg/events"
	"github.com/google/uuid"
)

// Root is the embedded base for aggregate roots. It carries identity,
// timestamps, the optimistic-concurrency version token, and the ordered
// list of domain events pending publication.
type Root struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   uint64    `json:"version"`

	pending  []*events.Event
	modified bool
}

// NewRoot creates a root with a fresh identity.
func NewRoot() Root {
	now := time.Now().UTC()
	return Root{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch marks the aggregate modified and bumps UpdatedAt. Every
// state-changing operation must call it.
func (r *Root) Touch() {
	r.modified = true
	r.UpdatedAt = time.Now().UTC()
}

// Modified reports whether any state-changing operation ran since the
// aggregate was loaded or its flag was cleared.
func (r *Root) Modified() bool {
	return r.modified
}

// ClearModified resets the modified flag after a successful save.
func (r *Root) ClearModified() {
	r.modified = false
}

// Record appends a domain event. Events are published by the caller after
// persistence succeeds, in the order they were recorded.
func (r *Root) Record(eventType events.EventType, message string) {
	r.pending = append(r.pending, &events.Event{
		ID:       uuid.New().String(),
		Type:     eventType,
		EntityID: r.ID,
		Message:  message,
	})
}

// TakeEvents returns the pending events and clears the list.
func (r *Root) TakeEvents() []*events.Event {
	out := r.pending
	r.pending = nil
	return out
}

// PendingEvents returns the pending events without clearing them.
func (r *Root) PendingEvents() []*events.Event {
	return r.pending
}
