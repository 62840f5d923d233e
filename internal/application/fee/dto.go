package fee

import (
	"time"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Skip reasons reported by generation
const (
	SkipReasonPendingFees     = "PENDING_FEES_OTHER_YEAR"
	SkipReasonNoClass         = "NO_CLASS_ASSIGNED"
	SkipReasonAlreadyInvoiced = "ALREADY_INVOICED"
	SkipReasonNoFeeStructure  = "NO_FEE_STRUCTURE"
)

// GenerateFeesRequest asks for one invoice per active student for a year.
// Nil options take their defaults (both true).
type GenerateFeesRequest struct {
	AcademicYearID              uuid.UUID
	AutoApplyDiscounts          *bool
	SkipStudentsWithPendingFees *bool
	ClassIDs                    []uuid.UUID
}

func (r GenerateFeesRequest) autoApplyDiscounts() bool {
	return r.AutoApplyDiscounts == nil || *r.AutoApplyDiscounts
}

func (r GenerateFeesRequest) skipPending() bool {
	return r.SkipStudentsWithPendingFees == nil || *r.SkipStudentsWithPendingFees
}

// SkippedStudent is a student generation did not bill, with the reason
type SkippedStudent struct {
	StudentID   uuid.UUID
	StudentName string
	Reason      string
}

// GenerationResult summarizes a generation run
type GenerationResult struct {
	AcademicYearID   uuid.UUID
	InvoicesCreated  int
	StudentsSkipped  []SkippedStudent
	TotalAmount      decimal.Decimal
	DiscountsApplied int
	InvoiceIDs       []uuid.UUID
	OverdueRefreshed int
}

// ProcessPaymentRequest records a payment against one invoice. Without
// CustomAllocations the amount is distributed automatically.
type ProcessPaymentRequest struct {
	InvoiceID         uuid.UUID
	Amount            decimal.Decimal
	Mode              string
	Reference         string
	IdempotencyKey    string
	CustomAllocations []fee.CustomAllocation
}

// AllocationLine is one fee head's share of a payment
type AllocationLine struct {
	BreakupID     uuid.UUID
	HeadID        uuid.UUID
	HeadName      string
	AmountApplied decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
}

// PaymentResult is the outcome of a processed payment
type PaymentResult struct {
	ReceiptID      uuid.UUID
	ReceiptNumber  string
	InvoiceID      uuid.UUID
	Amount         decimal.Decimal
	Mode           fee.PaymentMode
	Allocations    []AllocationLine
	InvoiceStatus  fee.InvoiceStatus
	InvoicePaid    decimal.Decimal
	InvoiceBalance decimal.Decimal
	CreatedAt      time.Time
	Replayed       bool
}

// SettleResult is the outcome of settling a year
type SettleResult struct {
	AcademicYearID uuid.UUID
	SettledCount   int
	SettledDate    time.Time
}

// SettlementReport bundles what an export needs
type SettlementReport struct {
	SchoolID     uuid.UUID
	AcademicYear fee.AcademicYear
	Summary      fee.SettlementSummary
	Invoices     []InvoiceView
}

// BreakupView is a breakup as shown to callers
type BreakupView struct {
	ID             uuid.UUID
	HeadID         uuid.UUID
	HeadName       string
	GrossAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	BaseAmount     decimal.Decimal
	TaxAmount      decimal.Decimal
	Amount         decimal.Decimal
	PaidAmount     decimal.Decimal
	Balance        decimal.Decimal
}

// InvoiceView is an invoice with its status evaluated at read time
type InvoiceView struct {
	ID             uuid.UUID
	InvoiceNumber  string
	StudentID      uuid.UUID
	AcademicYearID uuid.UUID
	ClassID        uuid.UUID
	TotalAmount    decimal.Decimal
	PaidAmount     decimal.Decimal
	DiscountAmount decimal.Decimal
	RoundOffAmount decimal.Decimal
	Balance        decimal.Decimal
	DueDate        time.Time
	Status         fee.InvoiceStatus
	IsSettled      bool
	SettledDate    *time.Time
	CreatedAt      time.Time
	Breakups       []BreakupView
}

// NewInvoiceView builds the read model of inv as of asOf
func NewInvoiceView(inv *fee.Invoice, asOf time.Time) InvoiceView {
	v := InvoiceView{
		ID:             inv.ID,
		InvoiceNumber:  inv.InvoiceNumber,
		StudentID:      inv.StudentID,
		AcademicYearID: inv.AcademicYearID,
		ClassID:        inv.ClassID,
		TotalAmount:    inv.TotalAmount,
		PaidAmount:     inv.PaidAmount,
		DiscountAmount: inv.DiscountAmount,
		RoundOffAmount: inv.RoundOffAmount,
		Balance:        inv.Outstanding(),
		DueDate:        inv.DueDate,
		Status:         inv.EvaluateStatus(asOf),
		IsSettled:      inv.IsSettled,
		SettledDate:    inv.SettledDate,
		CreatedAt:      inv.CreatedAt,
		Breakups:       make([]BreakupView, 0, len(inv.Breakups)),
	}
	for _, b := range inv.Breakups {
		v.Breakups = append(v.Breakups, BreakupView{
			ID:             b.ID,
			HeadID:         b.HeadID,
			HeadName:       b.HeadName,
			GrossAmount:    b.GrossAmount,
			DiscountAmount: b.DiscountAmount,
			BaseAmount:     b.BaseAmount,
			TaxAmount:      b.TaxAmount,
			Amount:         b.Amount,
			PaidAmount:     b.PaidAmount,
			Balance:        b.Balance(),
		})
	}
	return v
}

func newPaymentResult(r *fee.Receipt, inv *fee.Invoice, asOf time.Time, replayed bool) *PaymentResult {
	res := &PaymentResult{
		ReceiptID:      r.ID,
		ReceiptNumber:  r.ReceiptNumber,
		InvoiceID:      r.InvoiceID,
		Amount:         r.Amount,
		Mode:           r.Mode,
		Allocations:    make([]AllocationLine, 0, len(r.Allocations)),
		InvoiceStatus:  inv.EvaluateStatus(asOf),
		InvoicePaid:    inv.PaidAmount,
		InvoiceBalance: inv.Outstanding(),
		CreatedAt:      r.CreatedAt,
		Replayed:       replayed,
	}
	for _, a := range r.Allocations {
		res.Allocations = append(res.Allocations, AllocationLine{
			BreakupID:     a.BreakupID,
			HeadID:        a.HeadID,
			HeadName:      a.HeadName,
			AmountApplied: a.AmountApplied,
			BalanceBefore: a.BalanceBefore,
			BalanceAfter:  a.BalanceAfter,
		})
	}
	return res
}
