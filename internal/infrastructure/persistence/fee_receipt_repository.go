package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReceiptRepository implements fee.ReceiptRepository using GORM.
// Receipts are append-only; there is no update or delete.
type GormReceiptRepository struct {
	db *gorm.DB
}

// NewGormReceiptRepository creates a new GormReceiptRepository
func NewGormReceiptRepository(db *gorm.DB) *GormReceiptRepository {
	return &GormReceiptRepository{db: db}
}

// Create inserts a receipt with its allocation lines
func (r *GormReceiptRepository) Create(ctx context.Context, receipt *fee.Receipt) error {
	model := models.ReceiptModelFromDomain(receipt)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateWriteError(err, "receipt "+receipt.ReceiptNumber)
	}
	return nil
}

// FindByInvoice returns the receipts of an invoice, newest first
func (r *GormReceiptRepository) FindByInvoice(ctx context.Context, schoolID, invoiceID uuid.UUID) ([]fee.Receipt, error) {
	var rows []models.ReceiptModel
	if err := r.db.WithContext(ctx).
		Preload("Allocations").
		Where("school_id = ? AND invoice_id = ?", schoolID, invoiceID).
		Order("created_at DESC").
		Order("receipt_number DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	receipts := make([]fee.Receipt, len(rows))
	for i := range rows {
		receipts[i] = *rows[i].ToDomain()
	}
	return receipts, nil
}

// FindByNumber finds a receipt by its business number
func (r *GormReceiptRepository) FindByNumber(ctx context.Context, schoolID uuid.UUID, number string) (*fee.Receipt, error) {
	return r.findOne(ctx, "school_id = ? AND receipt_number = ?", schoolID, strings.TrimSpace(number))
}

// FindByIdempotencyKey finds the receipt recorded for a client request key
func (r *GormReceiptRepository) FindByIdempotencyKey(ctx context.Context, schoolID uuid.UUID, key string) (*fee.Receipt, error) {
	if key == "" {
		return nil, nil
	}
	return r.findOne(ctx, "school_id = ? AND idempotency_key = ?", schoolID, key)
}

func (r *GormReceiptRepository) findOne(ctx context.Context, where string, args ...any) (*fee.Receipt, error) {
	var model models.ReceiptModel
	if err := r.db.WithContext(ctx).
		Preload("Allocations").
		Where(where, args...).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Ensure GormReceiptRepository implements ReceiptRepository
var _ fee.ReceiptRepository = (*GormReceiptRepository)(nil)
