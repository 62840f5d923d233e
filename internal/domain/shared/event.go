package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact about one school's fees. Events are published only
// after the change that raised them has committed.
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
	SchoolID() uuid.UUID
}

// AggregateRef names the aggregate an event is about
type AggregateRef struct {
	Type string    `json:"type"`
	ID   uuid.UUID `json:"id"`
}

// EventHeader implements DomainEvent; concrete events embed it
type EventHeader struct {
	ID        uuid.UUID    `json:"event_id"`
	Type      string       `json:"event_type"`
	At        time.Time    `json:"occurred_at"`
	Aggregate AggregateRef `json:"aggregate"`
	School    uuid.UUID    `json:"school_id"`
}

// NewEventHeader stamps a new event id
func NewEventHeader(eventType string, aggregate AggregateRef, schoolID uuid.UUID, at time.Time) EventHeader {
	return EventHeader{
		ID:        uuid.New(),
		Type:      eventType,
		At:        at,
		Aggregate: aggregate,
		School:    schoolID,
	}
}

func (h EventHeader) EventID() uuid.UUID      { return h.ID }
func (h EventHeader) EventType() string       { return h.Type }
func (h EventHeader) OccurredAt() time.Time   { return h.At }
func (h EventHeader) AggregateID() uuid.UUID  { return h.Aggregate.ID }
func (h EventHeader) AggregateType() string   { return h.Aggregate.Type }
func (h EventHeader) SchoolID() uuid.UUID     { return h.School }

// EventHandler reacts to published events. EventTypes lists the types it
// wants; an empty list subscribes to every type.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	EventTypes() []string
}

// EventPublisher hands committed events to subscribers
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}
