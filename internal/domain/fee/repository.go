package fee

import (
	"context"
	"time"

	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Repositories return (nil, nil) when a single record is not found; the
// application layer turns that into a NOT_FOUND error.

// AcademicYearRepository reads academic years
type AcademicYearRepository interface {
	FindByIDForSchool(ctx context.Context, schoolID, id uuid.UUID) (*AcademicYear, error)
}

// StudentRepository reads billable students
type StudentRepository interface {
	// FindActiveBySchool returns active students, optionally only those in classIDs
	FindActiveBySchool(ctx context.Context, schoolID uuid.UUID, classIDs []uuid.UUID) ([]Student, error)
}

// ClassRepository reads school classes
type ClassRepository interface {
	FindBySchool(ctx context.Context, schoolID uuid.UUID) ([]Class, error)
}

// FeeCatalogRepository reads fee heads, structures and discounts
type FeeCatalogRepository interface {
	FindHeads(ctx context.Context, schoolID uuid.UUID) ([]FeeHead, error)
	FindStructures(ctx context.Context, schoolID, academicYearID uuid.UUID, classID *uuid.UUID) ([]FeeStructure, error)
	FindDiscounts(ctx context.Context, schoolID, academicYearID uuid.UUID) ([]Discount, error)
}

// InvoiceFilter narrows invoice listings
type InvoiceFilter struct {
	shared.PageRequest
	AcademicYearID *uuid.UUID
	StudentID      *uuid.UUID
	ClassID        *uuid.UUID
	Status         *InvoiceStatus
	// StatusAsOf makes Status match the status evaluated on this day
	// instead of the stored one. Zero keeps the stored status.
	StatusAsOf    time.Time
	InvoiceNumber string
	Settled       *bool
	// DueBefore keeps invoices due strictly before this date
	DueBefore *time.Time
}

// InvoiceRepository persists invoices together with their breakups
type InvoiceRepository interface {
	FindByIDForSchool(ctx context.Context, schoolID, id uuid.UUID) (*Invoice, error)
	// FindByIDForUpdate loads the invoice holding a row lock until the
	// surrounding transaction ends
	FindByIDForUpdate(ctx context.Context, schoolID, id uuid.UUID) (*Invoice, error)
	FindByYear(ctx context.Context, schoolID, academicYearID uuid.UUID) ([]Invoice, error)
	FindAll(ctx context.Context, schoolID uuid.UUID, filter InvoiceFilter) ([]Invoice, int64, error)
	// FindInvoicedStudentIDs returns students that already have an invoice for the year
	FindInvoicedStudentIDs(ctx context.Context, schoolID, academicYearID uuid.UUID) (map[uuid.UUID]bool, error)
	// FindStudentIDsWithOpenInvoicesOutsideYear returns students owing money on another year's invoice
	FindStudentIDsWithOpenInvoicesOutsideYear(ctx context.Context, schoolID, academicYearID uuid.UUID) (map[uuid.UUID]bool, error)
	// FindPastDueOpen returns unpaid invoices whose due date is before asOf; a nil year means every year
	FindPastDueOpen(ctx context.Context, schoolID uuid.UUID, academicYearID *uuid.UUID, asOf time.Time) ([]Invoice, error)
	// FindSettleable returns PAID invoices of the year not yet settled
	FindSettleable(ctx context.Context, schoolID, academicYearID uuid.UUID) ([]Invoice, error)
	CreateBatch(ctx context.Context, invoices []*Invoice) error
	// SaveWithLock updates the invoice and its breakups if the stored version
	// still matches, then bumps the version
	SaveWithLock(ctx context.Context, invoice *Invoice) error
	// UpdateStatus persists status and settlement fields only
	UpdateStatus(ctx context.Context, invoice *Invoice) error
}

// ReceiptRepository persists receipts with their allocation lines
type ReceiptRepository interface {
	Create(ctx context.Context, receipt *Receipt) error
	FindByInvoice(ctx context.Context, schoolID, invoiceID uuid.UUID) ([]Receipt, error)
	FindByNumber(ctx context.Context, schoolID uuid.UUID, number string) (*Receipt, error)
	FindByIdempotencyKey(ctx context.Context, schoolID uuid.UUID, key string) (*Receipt, error)
}

// DocumentNumberGenerator issues gap-free business numbers per school
type DocumentNumberGenerator interface {
	// Next returns the next number for prefix within period, e.g. "INV-2026-000001"
	Next(ctx context.Context, schoolID uuid.UUID, prefix, period string) (string, error)
}
