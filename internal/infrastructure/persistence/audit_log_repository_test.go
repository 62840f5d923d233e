package persistence

import (
	"context"
	"testing"
	"time"

	appfee "github.com/feesettle/backend/internal/application/fee"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGormAuditRecorder(t *testing.T) {
	db := newTestDB(t)
	core, recorded := observer.New(zapcore.InfoLevel)
	recorder := NewGormAuditRecorder(db, zap.New(core))
	ctx := context.Background()

	school, actor := uuid.New(), uuid.New()
	require.NoError(t, recorder.Record(ctx, appfee.AuditEntry{
		SchoolID:     school,
		ActorID:      actor,
		RequestID:    "req-1",
		Action:       appfee.AuditActionGenerate,
		ResourceType: "academic_year",
		ResourceID:   "2026-27",
		Metadata:     map[string]any{"created": 3, "total_amount": "24000.00"},
		OccurredAt:   testNow,
	}))
	require.NoError(t, recorder.Record(ctx, appfee.AuditEntry{
		SchoolID:     school,
		ActorID:      actor,
		RequestID:    "req-2",
		Action:       appfee.AuditActionPayment,
		ResourceType: "invoice",
		ResourceID:   "INV-2026-000001",
		OccurredAt:   testNow.Add(time.Second),
	}))
	require.NoError(t, recorder.Record(ctx, appfee.AuditEntry{
		SchoolID:   uuid.New(),
		Action:     appfee.AuditActionSettle,
		OccurredAt: testNow,
	}))

	entries, err := recorder.FindBySchool(ctx, school, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, appfee.AuditActionPayment, entries[0].Action)
	assert.Empty(t, entries[0].Metadata)

	gen := entries[1]
	assert.Equal(t, appfee.AuditActionGenerate, gen.Action)
	assert.Equal(t, actor, gen.ActorID)
	assert.Equal(t, "req-1", gen.RequestID)
	assert.Equal(t, float64(3), gen.Metadata["created"])
	assert.Equal(t, "24000.00", gen.Metadata["total_amount"])

	logs := recorded.FilterMessage("audit").All()
	require.Len(t, logs, 3)
	assert.Equal(t, "fee.generate", logs[0].ContextMap()["action"])

	limited, err := recorder.FindBySchool(ctx, school, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
