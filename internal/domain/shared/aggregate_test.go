package shared

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchoolAggregate(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	school, actor := uuid.New(), uuid.New()

	a := NewSchoolAggregate(school, actor, now)
	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.Equal(t, 1, a.Version)
	assert.Equal(t, now, a.CreatedAt)
	assert.Equal(t, now, a.UpdatedAt)
	require.NotNil(t, a.CreatedBy)
	assert.Equal(t, actor, *a.CreatedBy)
	assert.True(t, a.OwnedBy(school))
	assert.False(t, a.OwnedBy(uuid.New()))

	anonymous := NewSchoolAggregate(school, uuid.Nil, now)
	assert.Nil(t, anonymous.CreatedBy)
}

func TestSchoolAggregate_Events(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	a := NewSchoolAggregate(uuid.New(), uuid.Nil, now)

	e := NewEventHeader("InvoicePaid", AggregateRef{Type: "Invoice", ID: a.ID}, a.SchoolID, now)
	a.Raise(e)
	assert.Len(t, a.PendingEvents(), 1)

	drained := a.DrainEvents()
	require.Len(t, drained, 1)
	assert.Equal(t, a.ID, drained[0].AggregateID())
	assert.Equal(t, "Invoice", drained[0].AggregateType())
	assert.Equal(t, a.SchoolID, drained[0].SchoolID())
	assert.Empty(t, a.PendingEvents())
	assert.Empty(t, a.DrainEvents())

	a.Touch(now.Add(time.Hour))
	a.BumpVersion()
	assert.Equal(t, now.Add(time.Hour), a.UpdatedAt)
	assert.Equal(t, 2, a.Version)
}
