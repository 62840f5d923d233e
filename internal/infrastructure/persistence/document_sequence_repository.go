package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormDocumentNumberGenerator issues invoice and receipt numbers from the
// document_sequences table. The upsert holds the sequence row lock until the
// surrounding transaction ends, so numbers are gap-free when the business
// write rolls back.
type GormDocumentNumberGenerator struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormDocumentNumberGenerator creates a new GormDocumentNumberGenerator
func NewGormDocumentNumberGenerator(db *gorm.DB) *GormDocumentNumberGenerator {
	return &GormDocumentNumberGenerator{db: db, now: time.Now}
}

// Next returns the next number for prefix within period, e.g. "INV-2026-000001"
func (g *GormDocumentNumberGenerator) Next(ctx context.Context, schoolID uuid.UUID, prefix, period string) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	period = strings.TrimSpace(period)
	if schoolID == uuid.Nil || prefix == "" || period == "" {
		return "", fmt.Errorf("document sequence requires school, prefix and period")
	}

	seq := models.DocumentSequenceModel{
		SchoolID:  schoolID,
		Prefix:    prefix,
		Period:    period,
		LastValue: 1,
		UpdatedAt: g.now().UTC(),
	}
	err := g.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "school_id"}, {Name: "prefix"}, {Name: "period"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"last_value": gorm.Expr("document_sequences.last_value + 1"),
					"updated_at": seq.UpdatedAt,
				}),
			},
			clause.Returning{Columns: []clause.Column{{Name: "last_value"}}},
		).
		Create(&seq).Error
	if err != nil {
		return "", fmt.Errorf("failed to advance %s sequence: %w", prefix, err)
	}

	return FormatDocumentNumber(prefix, period, seq.LastValue), nil
}

// FormatDocumentNumber renders prefix, period and a zero-padded counter
func FormatDocumentNumber(prefix, period string, n int64) string {
	return fmt.Sprintf("%s-%s-%06d", prefix, period, n)
}

// Ensure GormDocumentNumberGenerator implements DocumentNumberGenerator
var _ fee.DocumentNumberGenerator = (*GormDocumentNumberGenerator)(nil)
