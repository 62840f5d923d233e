package models

import (
	"sort"
	"time"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
type InvoiceModel struct {
	SchoolAggregateRecord
	InvoiceNumber  string          `gorm:"type:varchar(50);not null;index"`
	StudentID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_invoices_student_year,priority:1"`
	AcademicYearID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_invoices_student_year,priority:2"`
	ClassID        uuid.UUID       `gorm:"type:uuid;not null"`
	TotalAmount    decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	PaidAmount     decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	RoundOffAmount decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	DueDate        time.Time       `gorm:"type:date;not null"`
	Status         string          `gorm:"type:varchar(20);not null;default:'PENDING'"`
	IsSettled      bool            `gorm:"not null;default:false"`
	SettledDate    *time.Time      `gorm:"type:date"`
	// Associations
	Breakups []FeeBreakupModel `gorm:"foreignKey:InvoiceID;references:ID"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice.
// Breakups come back in the order they were created.
func (m *InvoiceModel) ToDomain() *fee.Invoice {
	inv := &fee.Invoice{
		SchoolAggregate: m.toAggregate(),
		InvoiceNumber:   m.InvoiceNumber,
		StudentID:       m.StudentID,
		AcademicYearID:  m.AcademicYearID,
		ClassID:         m.ClassID,
		TotalAmount:     m.TotalAmount,
		PaidAmount:      m.PaidAmount,
		DiscountAmount:  m.DiscountAmount,
		RoundOffAmount:  m.RoundOffAmount,
		DueDate:         m.DueDate.UTC(),
		Status:          fee.InvoiceStatus(m.Status),
		IsSettled:       m.IsSettled,
		Breakups:        make([]fee.FeeBreakup, 0, len(m.Breakups)),
	}
	if m.SettledDate != nil {
		d := m.SettledDate.UTC()
		inv.SettledDate = &d
	}

	breakups := make([]FeeBreakupModel, len(m.Breakups))
	copy(breakups, m.Breakups)
	sort.SliceStable(breakups, func(i, j int) bool {
		return breakups[i].Position < breakups[j].Position
	})
	for _, b := range breakups {
		inv.Breakups = append(inv.Breakups, b.ToDomain())
	}
	return inv
}

// FromDomain populates the persistence model from a domain Invoice.
func (m *InvoiceModel) FromDomain(inv *fee.Invoice) {
	m.fromAggregate(inv.SchoolAggregate)
	m.InvoiceNumber = inv.InvoiceNumber
	m.StudentID = inv.StudentID
	m.AcademicYearID = inv.AcademicYearID
	m.ClassID = inv.ClassID
	m.TotalAmount = inv.TotalAmount
	m.PaidAmount = inv.PaidAmount
	m.DiscountAmount = inv.DiscountAmount
	m.RoundOffAmount = inv.RoundOffAmount
	m.DueDate = inv.DueDate
	m.Status = string(inv.Status)
	m.IsSettled = inv.IsSettled
	m.SettledDate = inv.SettledDate
	m.Breakups = make([]FeeBreakupModel, len(inv.Breakups))
	for idx := range inv.Breakups {
		m.Breakups[idx] = *FeeBreakupModelFromDomain(&inv.Breakups[idx], inv.ID, idx, inv.CreatedAt, inv.UpdatedAt)
	}
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *fee.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// FeeBreakupModel is the persistence model for invoice lines.
type FeeBreakupModel struct {
	Record
	InvoiceID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_fee_breakups_invoice_head,priority:1"`
	HeadID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_fee_breakups_invoice_head,priority:2"`
	HeadName       string          `gorm:"type:varchar(100);not null"`
	GrossAmount    decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	BaseAmount     decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	TaxAmount      decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	Amount         decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	PaidAmount     decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	Position       int             `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (FeeBreakupModel) TableName() string {
	return "fee_breakups"
}

// ToDomain converts the persistence model to a domain FeeBreakup.
func (m *FeeBreakupModel) ToDomain() fee.FeeBreakup {
	return fee.FeeBreakup{
		ID:             m.ID,
		InvoiceID:      m.InvoiceID,
		HeadID:         m.HeadID,
		HeadName:       m.HeadName,
		GrossAmount:    m.GrossAmount,
		DiscountAmount: m.DiscountAmount,
		BaseAmount:     m.BaseAmount,
		TaxAmount:      m.TaxAmount,
		Amount:         m.Amount,
		PaidAmount:     m.PaidAmount,
	}
}

// FeeBreakupModelFromDomain creates a persistence model for the breakup at position.
func FeeBreakupModelFromDomain(b *fee.FeeBreakup, invoiceID uuid.UUID, position int, createdAt, updatedAt time.Time) *FeeBreakupModel {
	return &FeeBreakupModel{
		Record:         Record{ID: b.ID, CreatedAt: createdAt, UpdatedAt: updatedAt},
		InvoiceID:      invoiceID,
		HeadID:         b.HeadID,
		HeadName:       b.HeadName,
		GrossAmount:    b.GrossAmount,
		DiscountAmount: b.DiscountAmount,
		BaseAmount:     b.BaseAmount,
		TaxAmount:      b.TaxAmount,
		Amount:         b.Amount,
		PaidAmount:     b.PaidAmount,
		Position:       position,
	}
}

// ReceiptModel is the persistence model for receipts. Receipts are
// append-only so there is no updated_at or version.
type ReceiptModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key"`
	SchoolID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_receipts_school_number,priority:1;uniqueIndex:uq_receipts_school_idempotency,priority:1,where:idempotency_key IS NOT NULL"`
	ReceiptNumber  string          `gorm:"type:varchar(50);not null;uniqueIndex:uq_receipts_school_number,priority:2"`
	InvoiceID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	StudentID      uuid.UUID       `gorm:"type:uuid;not null"`
	Amount         decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Mode           string          `gorm:"type:varchar(20);not null"`
	Reference      string          `gorm:"type:varchar(200);not null;default:''"`
	IdempotencyKey *string         `gorm:"type:varchar(100);uniqueIndex:uq_receipts_school_idempotency,priority:2"`
	CreatedBy      uuid.UUID       `gorm:"type:uuid;not null"`
	CreatedAt      time.Time       `gorm:"not null"`
	// Associations
	Allocations []PaymentAllocationModel `gorm:"foreignKey:ReceiptID;references:ID"`
}

// TableName returns the table name for GORM
func (ReceiptModel) TableName() string {
	return "receipts"
}

// ToDomain converts the persistence model to a domain Receipt.
func (m *ReceiptModel) ToDomain() *fee.Receipt {
	r := &fee.Receipt{
		ID:            m.ID,
		SchoolID:      m.SchoolID,
		ReceiptNumber: m.ReceiptNumber,
		InvoiceID:     m.InvoiceID,
		StudentID:     m.StudentID,
		Amount:        m.Amount,
		Mode:          fee.PaymentMode(m.Mode),
		Reference:     m.Reference,
		CreatedBy:     m.CreatedBy,
		CreatedAt:     m.CreatedAt,
		Allocations:   make([]fee.PaymentAllocation, len(m.Allocations)),
	}
	if m.IdempotencyKey != nil {
		r.IdempotencyKey = *m.IdempotencyKey
	}
	for i, a := range m.Allocations {
		r.Allocations[i] = a.ToDomain()
	}
	return r
}

// ReceiptModelFromDomain creates a new persistence model from a domain Receipt.
func ReceiptModelFromDomain(r *fee.Receipt) *ReceiptModel {
	m := &ReceiptModel{
		ID:            r.ID,
		SchoolID:      r.SchoolID,
		ReceiptNumber: r.ReceiptNumber,
		InvoiceID:     r.InvoiceID,
		StudentID:     r.StudentID,
		Amount:        r.Amount,
		Mode:          string(r.Mode),
		Reference:     r.Reference,
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt,
		Allocations:   make([]PaymentAllocationModel, len(r.Allocations)),
	}
	if r.IdempotencyKey != "" {
		key := r.IdempotencyKey
		m.IdempotencyKey = &key
	}
	for i := range r.Allocations {
		m.Allocations[i] = *PaymentAllocationModelFromDomain(&r.Allocations[i])
	}
	return m
}

// PaymentAllocationModel is the persistence model for receipt allocation lines.
type PaymentAllocationModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key"`
	ReceiptID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	BreakupID     uuid.UUID       `gorm:"type:uuid;not null"`
	HeadID        uuid.UUID       `gorm:"type:uuid;not null"`
	HeadName      string          `gorm:"type:varchar(100);not null"`
	AmountApplied decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(14,2);not null"`
}

// TableName returns the table name for GORM
func (PaymentAllocationModel) TableName() string {
	return "payment_allocations"
}

// ToDomain converts the persistence model to a domain PaymentAllocation.
func (m *PaymentAllocationModel) ToDomain() fee.PaymentAllocation {
	return fee.PaymentAllocation{
		ID:            m.ID,
		ReceiptID:     m.ReceiptID,
		BreakupID:     m.BreakupID,
		HeadID:        m.HeadID,
		HeadName:      m.HeadName,
		AmountApplied: m.AmountApplied,
		BalanceBefore: m.BalanceBefore,
		BalanceAfter:  m.BalanceAfter,
	}
}

// PaymentAllocationModelFromDomain creates a persistence model from a domain PaymentAllocation.
func PaymentAllocationModelFromDomain(a *fee.PaymentAllocation) *PaymentAllocationModel {
	return &PaymentAllocationModel{
		ID:            a.ID,
		ReceiptID:     a.ReceiptID,
		BreakupID:     a.BreakupID,
		HeadID:        a.HeadID,
		HeadName:      a.HeadName,
		AmountApplied: a.AmountApplied,
		BalanceBefore: a.BalanceBefore,
		BalanceAfter:  a.BalanceAfter,
	}
}

// DocumentSequenceModel holds the last issued number per (school, prefix, period).
type DocumentSequenceModel struct {
	SchoolID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Prefix    string    `gorm:"type:varchar(10);primaryKey"`
	Period    string    `gorm:"type:varchar(10);primaryKey"`
	LastValue int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (DocumentSequenceModel) TableName() string {
	return "document_sequences"
}
