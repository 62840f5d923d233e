package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditLogModel is one row of the fee audit trail
type AuditLogModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key"`
	SchoolID     uuid.UUID `gorm:"type:uuid;not null;index:idx_audit_logs_school_created,priority:1"`
	ActorID      uuid.UUID `gorm:"type:uuid;not null"`
	RequestID    string    `gorm:"type:varchar(100);not null;default:''"`
	Action       string    `gorm:"type:varchar(50);not null"`
	ResourceType string    `gorm:"type:varchar(50);not null;index:idx_audit_logs_resource,priority:1"`
	ResourceID   string    `gorm:"type:varchar(100);not null;index:idx_audit_logs_resource,priority:2"`
	Metadata     string    `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt    time.Time `gorm:"not null;index:idx_audit_logs_school_created,priority:2"`
}

// TableName returns the table name for GORM
func (AuditLogModel) TableName() string {
	return "audit_logs"
}
