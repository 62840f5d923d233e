package models

import (
	"time"

	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Record carries the key and timestamps every fee table has
type Record struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// stamped returns a Record created and updated at now
func stamped(id uuid.UUID, now time.Time) Record {
	return Record{ID: id, CreatedAt: now, UpdatedAt: now}
}

// SchoolAggregateRecord is the row shape of a shared.SchoolAggregate.
// Version backs the optimistic write in the invoice repository.
type SchoolAggregateRecord struct {
	Record
	SchoolID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	CreatedBy *uuid.UUID `gorm:"type:uuid"`
	Version   int        `gorm:"not null;default:1"`
}

func (m *SchoolAggregateRecord) fromAggregate(a shared.SchoolAggregate) {
	m.ID = a.ID
	m.SchoolID = a.SchoolID
	m.CreatedBy = a.CreatedBy
	m.CreatedAt = a.CreatedAt
	m.UpdatedAt = a.UpdatedAt
	m.Version = a.Version
}

func (m *SchoolAggregateRecord) toAggregate() shared.SchoolAggregate {
	return shared.SchoolAggregate{
		ID:        m.ID,
		SchoolID:  m.SchoolID,
		CreatedBy: m.CreatedBy,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		Version:   m.Version,
	}
}
