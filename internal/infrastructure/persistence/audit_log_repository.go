package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	appfee "github.com/feesettle/backend/internal/application/fee"
	"github.com/feesettle/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormAuditRecorder writes fee audit entries to audit_logs and mirrors each
// one to the structured log.
type GormAuditRecorder struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormAuditRecorder creates a new GormAuditRecorder
func NewGormAuditRecorder(db *gorm.DB, logger *zap.Logger) *GormAuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormAuditRecorder{db: db, logger: logger}
}

// Record stores one audit entry
func (r *GormAuditRecorder) Record(ctx context.Context, entry appfee.AuditEntry) error {
	metadata := []byte("{}")
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode audit metadata: %w", err)
		}
		metadata = raw
	}

	row := models.AuditLogModel{
		ID:           uuid.New(),
		SchoolID:     entry.SchoolID,
		ActorID:      entry.ActorID,
		RequestID:    entry.RequestID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Metadata:     string(metadata),
		CreatedAt:    entry.OccurredAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}

	r.logger.Info("audit",
		zap.String("action", entry.Action),
		zap.String("school_id", entry.SchoolID.String()),
		zap.String("actor_id", entry.ActorID.String()),
		zap.String("request_id", entry.RequestID),
		zap.String("resource_type", entry.ResourceType),
		zap.String("resource_id", entry.ResourceID),
	)
	return nil
}

// FindBySchool returns the latest audit entries of a school, newest first
func (r *GormAuditRecorder) FindBySchool(ctx context.Context, schoolID uuid.UUID, limit int) ([]appfee.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []models.AuditLogModel
	if err := r.db.WithContext(ctx).
		Where("school_id = ?", schoolID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]appfee.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entry := appfee.AuditEntry{
			SchoolID:     row.SchoolID,
			ActorID:      row.ActorID,
			RequestID:    row.RequestID,
			Action:       row.Action,
			ResourceType: row.ResourceType,
			ResourceID:   row.ResourceID,
			OccurredAt:   row.CreatedAt,
		}
		if row.Metadata != "" {
			_ = json.Unmarshal([]byte(row.Metadata), &entry.Metadata)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Ensure GormAuditRecorder implements AuditRecorder
var _ appfee.AuditRecorder = (*GormAuditRecorder)(nil)
