package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInvoiceRepository implements fee.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

func (r *GormInvoiceRepository) withBreakups(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Breakups", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

// FindByIDForSchool finds an invoice by ID within a school
func (r *GormInvoiceRepository) FindByIDForSchool(ctx context.Context, schoolID, id uuid.UUID) (*fee.Invoice, error) {
	var model models.InvoiceModel
	if err := r.withBreakups(ctx).
		Where("school_id = ? AND id = ?", schoolID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForUpdate finds an invoice and locks its row with SELECT ... FOR UPDATE
func (r *GormInvoiceRepository) FindByIDForUpdate(ctx context.Context, schoolID, id uuid.UUID) (*fee.Invoice, error) {
	var model models.InvoiceModel
	if err := r.withBreakups(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("school_id = ? AND id = ?", schoolID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByYear returns every invoice of an academic year ordered by invoice number
func (r *GormInvoiceRepository) FindByYear(ctx context.Context, schoolID, academicYearID uuid.UUID) ([]fee.Invoice, error) {
	var rows []models.InvoiceModel
	if err := r.withBreakups(ctx).
		Where("school_id = ? AND academic_year_id = ?", schoolID, academicYearID).
		Order("invoice_number ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainInvoices(rows), nil
}

// FindAll finds invoices matching the filter and the total count before paging
func (r *GormInvoiceRepository) FindAll(ctx context.Context, schoolID uuid.UUID, filter fee.InvoiceFilter) ([]fee.Invoice, int64, error) {
	scoped := func() *gorm.DB {
		return r.applyInvoiceFilter(
			r.db.WithContext(ctx).Model(&models.InvoiceModel{}).Where("school_id = ?", schoolID),
			filter,
		)
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.PageRequest.Normalize()

	var rows []models.InvoiceModel
	if err := scoped().
		Preload("Breakups", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order(invoiceOrder(page.OrderBy, page.OrderDir)).
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toDomainInvoices(rows), total, nil
}

// FindInvoicedStudentIDs returns students that already have an invoice for the year
func (r *GormInvoiceRepository) FindInvoicedStudentIDs(ctx context.Context, schoolID, academicYearID uuid.UUID) (map[uuid.UUID]bool, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("school_id = ? AND academic_year_id = ?", schoolID, academicYearID).
		Distinct().
		Pluck("student_id", &ids).Error; err != nil {
		return nil, err
	}
	return toIDSet(ids), nil
}

// FindStudentIDsWithOpenInvoicesOutsideYear returns students still owing on another year's invoice
func (r *GormInvoiceRepository) FindStudentIDsWithOpenInvoicesOutsideYear(ctx context.Context, schoolID, academicYearID uuid.UUID) (map[uuid.UUID]bool, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("school_id = ? AND academic_year_id <> ? AND paid_amount < total_amount", schoolID, academicYearID).
		Distinct().
		Pluck("student_id", &ids).Error; err != nil {
		return nil, err
	}
	return toIDSet(ids), nil
}

// FindPastDueOpen returns unpaid invoices due before asOf's calendar day
// whose stored status is not yet OVERDUE
func (r *GormInvoiceRepository) FindPastDueOpen(ctx context.Context, schoolID uuid.UUID, academicYearID *uuid.UUID, asOf time.Time) ([]fee.Invoice, error) {
	query := r.withBreakups(ctx).
		Where("school_id = ? AND due_date < ? AND paid_amount < total_amount AND status <> ?",
			schoolID, calendarDay(asOf), string(fee.InvoiceStatusOverdue))
	if academicYearID != nil {
		query = query.Where("academic_year_id = ?", *academicYearID)
	}

	var rows []models.InvoiceModel
	if err := query.Order("due_date ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainInvoices(rows), nil
}

// FindSettleable returns PAID invoices of the year not yet settled
func (r *GormInvoiceRepository) FindSettleable(ctx context.Context, schoolID, academicYearID uuid.UUID) ([]fee.Invoice, error) {
	var rows []models.InvoiceModel
	if err := r.withBreakups(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("school_id = ? AND academic_year_id = ? AND status = ? AND is_settled = ?",
			schoolID, academicYearID, string(fee.InvoiceStatusPaid), false).
		Order("invoice_number ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainInvoices(rows), nil
}

// CreateBatch inserts invoices with their breakups. A unique violation means
// another run got there first and is reported as a concurrent modification.
func (r *GormInvoiceRepository) CreateBatch(ctx context.Context, invoices []*fee.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}
	rows := make([]*models.InvoiceModel, len(invoices))
	for i, inv := range invoices {
		rows[i] = models.InvoiceModelFromDomain(inv)
	}
	if err := r.db.WithContext(ctx).CreateInBatches(rows, 100).Error; err != nil {
		return translateWriteError(err, "invoice batch")
	}
	return nil
}

// SaveWithLock saves with optimistic locking (checks version)
func (r *GormInvoiceRepository) SaveWithLock(ctx context.Context, inv *fee.Invoice) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.InvoiceModel{}).
			Where("id = ? AND school_id = ? AND version = ?", inv.ID, inv.SchoolID, inv.Version).
			Updates(map[string]interface{}{
				"paid_amount":  inv.PaidAmount,
				"status":       string(inv.Status),
				"is_settled":   inv.IsSettled,
				"settled_date": inv.SettledDate,
				"version":      inv.Version + 1,
				"updated_at":   inv.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fee.NewConcurrentModificationError("invoice "+inv.InvoiceNumber, errors.New("version mismatch"))
		}

		for _, b := range inv.Breakups {
			if err := tx.Model(&models.FeeBreakupModel{}).
				Where("id = ? AND invoice_id = ?", b.ID, inv.ID).
				Updates(map[string]interface{}{
					"paid_amount": b.PaidAmount,
					"updated_at":  inv.UpdatedAt,
				}).Error; err != nil {
				return err
			}
		}

		inv.BumpVersion()
		return nil
	})
}

// UpdateStatus persists status and settlement fields only
func (r *GormInvoiceRepository) UpdateStatus(ctx context.Context, inv *fee.Invoice) error {
	result := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("id = ? AND school_id = ?", inv.ID, inv.SchoolID).
		Updates(map[string]interface{}{
			"status":       string(inv.Status),
			"is_settled":   inv.IsSettled,
			"settled_date": inv.SettledDate,
			"updated_at":   inv.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fee.NewNotFoundError("invoice", inv.ID.String())
	}
	return nil
}

// applyInvoiceFilter applies filter options without pagination
func (r *GormInvoiceRepository) applyInvoiceFilter(query *gorm.DB, filter fee.InvoiceFilter) *gorm.DB {
	if filter.AcademicYearID != nil {
		query = query.Where("academic_year_id = ?", *filter.AcademicYearID)
	}
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.ClassID != nil {
		query = query.Where("class_id = ?", *filter.ClassID)
	}
	if filter.Status != nil {
		query = whereStatus(query, *filter.Status, filter.StatusAsOf)
	}
	if filter.InvoiceNumber != "" {
		query = query.Where("invoice_number = ?", filter.InvoiceNumber)
	}
	if filter.Settled != nil {
		query = query.Where("is_settled = ?", *filter.Settled)
	}
	if filter.DueBefore != nil {
		query = query.Where("due_date < ?", *filter.DueBefore)
	}
	return query
}

// whereStatus matches status as Invoice.EvaluateStatus would report it on
// asOf's calendar day. A zero asOf matches the stored status.
func whereStatus(query *gorm.DB, status fee.InvoiceStatus, asOf time.Time) *gorm.DB {
	if asOf.IsZero() {
		return query.Where("status = ?", string(status))
	}
	day := calendarDay(asOf)
	switch status {
	case fee.InvoiceStatusPaid:
		return query.Where("paid_amount >= total_amount")
	case fee.InvoiceStatusOverdue:
		return query.Where("paid_amount < total_amount AND due_date < ?", day)
	case fee.InvoiceStatusPartial:
		return query.Where("paid_amount < total_amount AND due_date >= ? AND paid_amount > 0", day)
	default:
		return query.Where("paid_amount < total_amount AND due_date >= ? AND paid_amount <= 0", day)
	}
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func toDomainInvoices(rows []models.InvoiceModel) []fee.Invoice {
	invoices := make([]fee.Invoice, len(rows))
	for i := range rows {
		invoices[i] = *rows[i].ToDomain()
	}
	return invoices
}

func toIDSet(ids []uuid.UUID) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// translateWriteError maps unique violations to a retryable conflict
func translateWriteError(err error, resource string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fee.NewConcurrentModificationError(resource, err)
	}
	return err
}

// Ensure GormInvoiceRepository implements InvoiceRepository
var _ fee.InvoiceRepository = (*GormInvoiceRepository)(nil)
