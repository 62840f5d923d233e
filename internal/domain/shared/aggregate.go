package shared

import (
	"time"

	"github.com/google/uuid"
)

// SchoolAggregate holds the identity, ownership and optimistic-lock version
// of an aggregate that belongs to exactly one school. Every query and
// mutation on such an aggregate is scoped by SchoolID.
//
// Events raised while the aggregate is mutated stay pending until the
// caller has committed it and drains them.
type SchoolAggregate struct {
	ID        uuid.UUID
	SchoolID  uuid.UUID
	CreatedBy *uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int

	pending []DomainEvent
}

// NewSchoolAggregate stamps a fresh aggregate at version 1.
// A nil createdBy leaves the creator unset.
func NewSchoolAggregate(schoolID, createdBy uuid.UUID, now time.Time) SchoolAggregate {
	a := SchoolAggregate{
		ID:        uuid.New(),
		SchoolID:  schoolID,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if createdBy != uuid.Nil {
		a.CreatedBy = &createdBy
	}
	return a
}

// OwnedBy reports whether the aggregate belongs to schoolID
func (a *SchoolAggregate) OwnedBy(schoolID uuid.UUID) bool {
	return a.SchoolID == schoolID
}

// Touch moves UpdatedAt to now
func (a *SchoolAggregate) Touch(now time.Time) {
	a.UpdatedAt = now
}

// BumpVersion is called once per successful optimistic write
func (a *SchoolAggregate) BumpVersion() {
	a.Version++
}

// Raise queues an event for publication after commit
func (a *SchoolAggregate) Raise(event DomainEvent) {
	a.pending = append(a.pending, event)
}

// PendingEvents returns the queued events without clearing them
func (a *SchoolAggregate) PendingEvents() []DomainEvent {
	return a.pending
}

// DrainEvents returns the queued events and clears the queue
func (a *SchoolAggregate) DrainEvents() []DomainEvent {
	events := a.pending
	a.pending = nil
	return events
}
