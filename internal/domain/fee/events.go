package fee

import (
	"time"

	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeFeesGenerated   = "FeesGenerated"
	EventTypePaymentReceived = "PaymentReceived"
	EventTypeInvoicePaid     = "InvoicePaid"
	EventTypeYearSettled     = "YearSettled"
)

// Aggregate types
const (
	AggregateTypeInvoice      = "Invoice"
	AggregateTypeAcademicYear = "AcademicYear"
)

// FeesGeneratedEvent is published after a generation run commits
type FeesGeneratedEvent struct {
	shared.EventHeader
	AcademicYearID   uuid.UUID       `json:"academic_year_id"`
	InvoicesCreated  int             `json:"invoices_created"`
	StudentsSkipped  int             `json:"students_skipped"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	DiscountsApplied int             `json:"discounts_applied"`
}

// NewFeesGeneratedEvent creates a FeesGeneratedEvent
func NewFeesGeneratedEvent(schoolID, yearID uuid.UUID, created, skipped int, total decimal.Decimal, discounts int, at time.Time) *FeesGeneratedEvent {
	return &FeesGeneratedEvent{
		EventHeader:      shared.NewEventHeader(EventTypeFeesGenerated, shared.AggregateRef{Type: AggregateTypeAcademicYear, ID: yearID}, schoolID, at),
		AcademicYearID:   yearID,
		InvoicesCreated:  created,
		StudentsSkipped:  skipped,
		TotalAmount:      total,
		DiscountsApplied: discounts,
	}
}

// PaymentReceivedEvent is published after a receipt commits
type PaymentReceivedEvent struct {
	shared.EventHeader
	ReceiptID     uuid.UUID       `json:"receipt_id"`
	ReceiptNumber string          `json:"receipt_number"`
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	StudentID     uuid.UUID       `json:"student_id"`
	Amount        decimal.Decimal `json:"amount"`
	Mode          PaymentMode     `json:"mode"`
	InvoiceStatus InvoiceStatus   `json:"invoice_status"`
}

// NewPaymentReceivedEvent creates a PaymentReceivedEvent
func NewPaymentReceivedEvent(r *Receipt, inv *Invoice) *PaymentReceivedEvent {
	return &PaymentReceivedEvent{
		EventHeader:   shared.NewEventHeader(EventTypePaymentReceived, shared.AggregateRef{Type: AggregateTypeInvoice, ID: inv.ID}, inv.SchoolID, r.CreatedAt),
		ReceiptID:     r.ID,
		ReceiptNumber: r.ReceiptNumber,
		InvoiceID:     inv.ID,
		StudentID:     inv.StudentID,
		Amount:        r.Amount,
		Mode:          r.Mode,
		InvoiceStatus: inv.Status,
	}
}

// InvoicePaidEvent is raised when an invoice becomes fully paid
type InvoicePaidEvent struct {
	shared.EventHeader
	InvoiceNumber string          `json:"invoice_number"`
	StudentID     uuid.UUID       `json:"student_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// NewInvoicePaidEvent creates an InvoicePaidEvent
func NewInvoicePaidEvent(inv *Invoice, at time.Time) *InvoicePaidEvent {
	return &InvoicePaidEvent{
		EventHeader:   shared.NewEventHeader(EventTypeInvoicePaid, shared.AggregateRef{Type: AggregateTypeInvoice, ID: inv.ID}, inv.SchoolID, at),
		InvoiceNumber: inv.InvoiceNumber,
		StudentID:     inv.StudentID,
		TotalAmount:   inv.TotalAmount,
	}
}

// YearSettledEvent is published when a settle run marks at least one invoice
type YearSettledEvent struct {
	shared.EventHeader
	AcademicYearID uuid.UUID `json:"academic_year_id"`
	SettledCount   int       `json:"settled_count"`
	SettledDate    time.Time `json:"settled_date"`
}

// NewYearSettledEvent creates a YearSettledEvent
func NewYearSettledEvent(schoolID, yearID uuid.UUID, count int, on time.Time) *YearSettledEvent {
	return &YearSettledEvent{
		EventHeader:    shared.NewEventHeader(EventTypeYearSettled, shared.AggregateRef{Type: AggregateTypeAcademicYear, ID: yearID}, schoolID, on),
		AcademicYearID: yearID,
		SettledCount:   count,
		SettledDate:    dateOf(on),
	}
}
