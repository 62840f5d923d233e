package fee

import (
	"strings"
	"time"

	"github.com/feesettle/backend/internal/domain/shared/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMode is how the money was received
type PaymentMode string

const (
	PaymentModeCash         PaymentMode = "CASH"
	PaymentModeBankTransfer PaymentMode = "BANK_TRANSFER"
	PaymentModeCheque       PaymentMode = "CHEQUE"
	PaymentModeCard         PaymentMode = "CARD"
	PaymentModeUPI          PaymentMode = "UPI"
	PaymentModeOnline       PaymentMode = "ONLINE"
)

// IsValid checks if the payment mode is known
func (m PaymentMode) IsValid() bool {
	switch m {
	case PaymentModeCash, PaymentModeBankTransfer, PaymentModeCheque,
		PaymentModeCard, PaymentModeUPI, PaymentModeOnline:
		return true
	}
	return false
}

// ParsePaymentMode normalizes s into a PaymentMode
func ParsePaymentMode(s string) (PaymentMode, error) {
	m := PaymentMode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", validationError("unknown payment mode %q", s)
	}
	return m, nil
}

// PaymentAllocation is the part of a receipt applied to one invoice line
type PaymentAllocation struct {
	ID            uuid.UUID
	ReceiptID     uuid.UUID
	BreakupID     uuid.UUID
	HeadID        uuid.UUID
	HeadName      string
	AmountApplied decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
}

// Receipt records one payment against one invoice. Receipts and their
// allocations are append-only.
type Receipt struct {
	ID             uuid.UUID
	SchoolID       uuid.UUID
	ReceiptNumber  string
	InvoiceID      uuid.UUID
	StudentID      uuid.UUID
	Amount         decimal.Decimal
	Mode           PaymentMode
	Reference      string
	IdempotencyKey string
	CreatedBy      uuid.UUID
	CreatedAt      time.Time
	Allocations    []PaymentAllocation
}

// NewReceiptParams holds everything needed to record a payment
type NewReceiptParams struct {
	ReceiptNumber  string
	Invoice        *Invoice
	Amount         decimal.Decimal
	Mode           PaymentMode
	Reference      string
	IdempotencyKey string
	CreatedBy      uuid.UUID
	Allocations    []strategy.Allocation
	Now            time.Time
}

// NewReceipt creates a receipt whose allocations add up exactly to Amount
func NewReceipt(p NewReceiptParams) (*Receipt, error) {
	if strings.TrimSpace(p.ReceiptNumber) == "" {
		return nil, validationError("receipt number cannot be empty")
	}
	if p.Invoice == nil {
		return nil, validationError("receipt requires an invoice")
	}
	if !p.Mode.IsValid() {
		return nil, validationError("unknown payment mode %q", p.Mode)
	}
	if !p.Amount.IsPositive() {
		return nil, validationError("receipt amount must be greater than zero")
	}

	r := &Receipt{
		ID:             uuid.New(),
		SchoolID:       p.Invoice.SchoolID,
		ReceiptNumber:  p.ReceiptNumber,
		InvoiceID:      p.Invoice.ID,
		StudentID:      p.Invoice.StudentID,
		Amount:         p.Amount,
		Mode:           p.Mode,
		Reference:      strings.TrimSpace(p.Reference),
		IdempotencyKey: p.IdempotencyKey,
		CreatedBy:      p.CreatedBy,
		CreatedAt:      p.Now,
		Allocations:    make([]PaymentAllocation, 0, len(p.Allocations)),
	}

	applied := decimal.Zero
	for _, a := range p.Allocations {
		r.Allocations = append(r.Allocations, PaymentAllocation{
			ID:            uuid.New(),
			ReceiptID:     r.ID,
			BreakupID:     a.LineID,
			HeadID:        a.HeadID,
			HeadName:      a.Label,
			AmountApplied: a.AllocatedAmount,
			BalanceBefore: a.BalanceBefore,
			BalanceAfter:  a.BalanceAfter,
		})
		applied = applied.Add(a.AllocatedAmount)
	}
	if !applied.Equal(p.Amount) {
		return nil, NewAllocationMismatchError(applied, p.Amount)
	}

	return r, nil
}

// TotalApplied sums the allocation lines
func (r *Receipt) TotalApplied() decimal.Decimal {
	total := decimal.Zero
	for _, a := range r.Allocations {
		total = total.Add(a.AmountApplied)
	}
	return total
}
