package fee

import (
	"strings"
	"time"

	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/domain/shared/strategy"
	"github.com/feesettle/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the collection status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "PENDING"
	InvoiceStatusPartial InvoiceStatus = "PARTIAL"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
)

// AllInvoiceStatuses lists every status in display order
func AllInvoiceStatuses() []InvoiceStatus {
	return []InvoiceStatus{InvoiceStatusPending, InvoiceStatusPartial, InvoiceStatusPaid, InvoiceStatusOverdue}
}

// IsValid checks if the status is valid
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusPartial, InvoiceStatusPaid, InvoiceStatusOverdue:
		return true
	}
	return false
}

// String returns the string representation
func (s InvoiceStatus) String() string {
	return string(s)
}

// FeeBreakup is one invoice line: what the student owes for one fee head
type FeeBreakup struct {
	ID             uuid.UUID
	InvoiceID      uuid.UUID
	HeadID         uuid.UUID
	HeadName       string
	GrossAmount    decimal.Decimal // fee structure amount before discount
	DiscountAmount decimal.Decimal
	BaseAmount     decimal.Decimal
	TaxAmount      decimal.Decimal
	Amount         decimal.Decimal // payable: post-discount, post-tax
	PaidAmount     decimal.Decimal
}

// Balance returns what is still owed on the line
func (b FeeBreakup) Balance() decimal.Decimal {
	return b.Amount.Sub(b.PaidAmount)
}

// InvoiceLine is a priced fee head ready to become a breakup
type InvoiceLine struct {
	HeadID         uuid.UUID
	HeadName       string
	GrossAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	Split          TaxSplit
}

// Invoice is the aggregate root for a student's fees in one academic year
type Invoice struct {
	shared.SchoolAggregate
	InvoiceNumber  string
	StudentID      uuid.UUID
	AcademicYearID uuid.UUID
	ClassID        uuid.UUID
	TotalAmount    decimal.Decimal
	PaidAmount     decimal.Decimal
	DiscountAmount decimal.Decimal
	RoundOffAmount decimal.Decimal
	DueDate        time.Time
	Status         InvoiceStatus
	IsSettled      bool
	SettledDate    *time.Time
	Breakups       []FeeBreakup
}

// NewInvoiceParams holds everything needed to create an invoice
type NewInvoiceParams struct {
	SchoolID       uuid.UUID
	InvoiceNumber  string
	StudentID      uuid.UUID
	AcademicYearID uuid.UUID
	ClassID        uuid.UUID
	DueDate        time.Time
	Lines          []InvoiceLine
	CreatedBy      uuid.UUID
	Now            time.Time
}

// NewInvoice creates an invoice with one breakup per line.
//
// The total is the line sum rounded to cents; whatever rounding moved is kept
// in RoundOffAmount, so TotalAmount == sum(breakup.Amount) + RoundOffAmount.
func NewInvoice(p NewInvoiceParams) (*Invoice, error) {
	if strings.TrimSpace(p.InvoiceNumber) == "" {
		return nil, validationError("invoice number cannot be empty")
	}
	if p.StudentID == uuid.Nil || p.AcademicYearID == uuid.Nil {
		return nil, validationError("invoice requires a student and an academic year")
	}
	if len(p.Lines) == 0 {
		return nil, validationError("invoice requires at least one fee line")
	}

	inv := &Invoice{
		SchoolAggregate: shared.NewSchoolAggregate(p.SchoolID, p.CreatedBy, p.Now),
		InvoiceNumber:   p.InvoiceNumber,
		StudentID:       p.StudentID,
		AcademicYearID:  p.AcademicYearID,
		ClassID:         p.ClassID,
		PaidAmount:      decimal.Zero,
		DueDate:         dateOf(p.DueDate),
		Breakups:        make([]FeeBreakup, 0, len(p.Lines)),
	}

	seen := make(map[uuid.UUID]bool, len(p.Lines))
	lineSum := decimal.Zero
	discount := decimal.Zero
	for _, line := range p.Lines {
		if seen[line.HeadID] {
			return nil, validationError("fee head %s appears twice on one invoice", line.HeadID)
		}
		seen[line.HeadID] = true

		if line.Split.Total.IsNegative() || !line.Split.Base.Add(line.Split.Tax).Equal(line.Split.Total) {
			return nil, validationError("fee line %q has an inconsistent tax split", line.HeadName)
		}
		if !valueobject.HasCentPrecision(line.Split.Total) {
			return nil, validationError("fee line %q total %s has sub-cent precision", line.HeadName, line.Split.Total)
		}

		inv.Breakups = append(inv.Breakups, FeeBreakup{
			ID:             uuid.New(),
			InvoiceID:      inv.ID,
			HeadID:         line.HeadID,
			HeadName:       line.HeadName,
			GrossAmount:    line.GrossAmount,
			DiscountAmount: line.DiscountAmount,
			BaseAmount:     line.Split.Base,
			TaxAmount:      line.Split.Tax,
			Amount:         line.Split.Total,
			PaidAmount:     decimal.Zero,
		})
		lineSum = lineSum.Add(line.Split.Total)
		discount = discount.Add(line.DiscountAmount)
	}

	inv.TotalAmount = valueobject.RoundCents(lineSum)
	inv.RoundOffAmount = inv.TotalAmount.Sub(lineSum)
	inv.DiscountAmount = discount
	inv.Status = inv.EvaluateStatus(p.Now)

	return inv, nil
}

// Outstanding returns the unpaid amount across all breakups
func (i *Invoice) Outstanding() decimal.Decimal {
	total := decimal.Zero
	for _, b := range i.Breakups {
		total = total.Add(b.Balance())
	}
	return total
}

// EvaluateStatus derives the status from paid vs total and the due date.
// A past-due invoice that is not fully paid is OVERDUE even when partly paid.
func (i *Invoice) EvaluateStatus(asOf time.Time) InvoiceStatus {
	switch {
	case i.PaidAmount.GreaterThanOrEqual(i.TotalAmount):
		return InvoiceStatusPaid
	case dateOf(asOf).After(i.DueDate):
		return InvoiceStatusOverdue
	case i.PaidAmount.IsPositive():
		return InvoiceStatusPartial
	default:
		return InvoiceStatusPending
	}
}

// RefreshStatus stores the evaluated status and reports whether it changed
func (i *Invoice) RefreshStatus(asOf time.Time) bool {
	next := i.EvaluateStatus(asOf)
	if next == i.Status {
		return false
	}
	i.Status = next
	i.Touch(asOf)
	return true
}

// FindBreakupByHead returns the breakup for headID, or nil
func (i *Invoice) FindBreakupByHead(headID uuid.UUID) *FeeBreakup {
	for idx := range i.Breakups {
		if i.Breakups[idx].HeadID == headID {
			return &i.Breakups[idx]
		}
	}
	return nil
}

func (i *Invoice) findBreakup(id uuid.UUID) *FeeBreakup {
	for idx := range i.Breakups {
		if i.Breakups[idx].ID == id {
			return &i.Breakups[idx]
		}
	}
	return nil
}

// OutstandingLines returns the breakups that still owe money, in invoice order
func (i *Invoice) OutstandingLines() []strategy.Line {
	lines := make([]strategy.Line, 0, len(i.Breakups))
	for _, b := range i.Breakups {
		if !b.Balance().IsPositive() {
			continue
		}
		lines = append(lines, strategy.Line{
			ID:      b.ID,
			HeadID:  b.HeadID,
			Label:   b.HeadName,
			Balance: b.Balance(),
		})
	}
	return lines
}

// ValidatePayment checks a payment amount against the invoice
func (i *Invoice) ValidatePayment(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return validationError("payment amount must be greater than zero")
	}
	if !valueobject.HasCentPrecision(amount) {
		return validationError("payment amount %s has more than 2 decimal places", amount.String())
	}
	if i.IsSettled {
		return validationError("invoice %s is settled and cannot take payments", i.InvoiceNumber)
	}
	outstanding := i.Outstanding()
	if amount.GreaterThan(outstanding) {
		return NewOverpaymentError(amount, outstanding)
	}
	return nil
}

// CustomAllocation is a caller-chosen amount for one fee head
type CustomAllocation struct {
	HeadID uuid.UUID
	Amount decimal.Decimal
}

// PlanExplicitAllocation validates caller-chosen allocations against the
// invoice and returns them in invoice order. Nothing is mutated.
func (i *Invoice) PlanExplicitAllocation(amount decimal.Decimal, custom []CustomAllocation) ([]strategy.Allocation, error) {
	if len(custom) == 0 {
		return nil, validationError("custom allocations cannot be empty")
	}

	byHead := make(map[uuid.UUID]decimal.Decimal, len(custom))
	sum := decimal.Zero
	for _, c := range custom {
		if !c.Amount.IsPositive() || !valueobject.HasCentPrecision(c.Amount) {
			return nil, validationError("allocation for fee head %s must be a positive amount with at most 2 decimals", c.HeadID)
		}
		if _, dup := byHead[c.HeadID]; dup {
			return nil, validationError("fee head %s is allocated more than once", c.HeadID)
		}
		if i.FindBreakupByHead(c.HeadID) == nil {
			return nil, NewNotFoundError("fee head on invoice", c.HeadID.String())
		}
		byHead[c.HeadID] = c.Amount
		sum = sum.Add(c.Amount)
	}

	if !sum.Equal(amount) {
		return nil, NewAllocationMismatchError(sum, amount)
	}

	plan := make([]strategy.Allocation, 0, len(custom))
	for _, b := range i.Breakups {
		applied, ok := byHead[b.HeadID]
		if !ok {
			continue
		}
		balance := b.Balance()
		if applied.GreaterThan(balance) {
			return nil, NewOverAllocationError(b.HeadName, applied, balance)
		}
		plan = append(plan, strategy.Allocation{
			LineID:          b.ID,
			HeadID:          b.HeadID,
			Label:           b.HeadName,
			AllocatedAmount: applied,
			BalanceBefore:   balance,
			BalanceAfter:    balance.Sub(applied),
		})
	}
	return plan, nil
}

// ApplyAllocations adds each allocation to its breakup's paid amount and
// recomputes the invoice paid amount and status. Either every allocation is
// applied or, on error, none is.
func (i *Invoice) ApplyAllocations(allocations []strategy.Allocation, at time.Time) error {
	if len(allocations) == 0 {
		return validationError("payment produced no allocations")
	}
	if i.IsSettled {
		return validationError("invoice %s is settled and cannot take payments", i.InvoiceNumber)
	}

	pending := make(map[uuid.UUID]decimal.Decimal, len(allocations))
	for _, a := range allocations {
		b := i.findBreakup(a.LineID)
		if b == nil {
			return NewNotFoundError("invoice line", a.LineID.String())
		}
		if !a.AllocatedAmount.IsPositive() {
			return validationError("allocation to %q must be positive", b.HeadName)
		}
		next := pending[a.LineID].Add(a.AllocatedAmount)
		if next.GreaterThan(b.Balance()) {
			return NewOverAllocationError(b.HeadName, next, b.Balance())
		}
		pending[a.LineID] = next
	}

	wasPaid := i.Status == InvoiceStatusPaid
	paid := decimal.Zero
	for idx := range i.Breakups {
		b := &i.Breakups[idx]
		if add, ok := pending[b.ID]; ok {
			b.PaidAmount = b.PaidAmount.Add(add)
		}
		paid = paid.Add(b.PaidAmount)
	}
	i.PaidAmount = paid
	i.Status = i.EvaluateStatus(at)
	i.Touch(at)

	if !wasPaid && i.Status == InvoiceStatusPaid {
		i.Raise(NewInvoicePaidEvent(i, at))
	}
	return nil
}

// Settle marks a fully paid invoice as settled on the given day. It reports
// false, changing nothing, when the invoice is not PAID or already settled.
func (i *Invoice) Settle(on time.Time) bool {
	if i.IsSettled || i.EvaluateStatus(on) != InvoiceStatusPaid {
		return false
	}
	d := dateOf(on)
	i.IsSettled = true
	i.SettledDate = &d
	i.Touch(on)
	return true
}

// CheckInvariants verifies the money invariants of the aggregate
func (i *Invoice) CheckInvariants() error {
	lineSum := decimal.Zero
	paid := decimal.Zero
	for _, b := range i.Breakups {
		if b.Balance().IsNegative() {
			return validationError("line %q is overpaid", b.HeadName)
		}
		lineSum = lineSum.Add(b.Amount)
		paid = paid.Add(b.PaidAmount)
	}
	if !lineSum.Add(i.RoundOffAmount).Equal(i.TotalAmount) {
		return validationError("invoice %s total %s does not match its lines", i.InvoiceNumber, i.TotalAmount)
	}
	if !paid.Equal(i.PaidAmount) {
		return validationError("invoice %s paid %s does not match its lines", i.InvoiceNumber, i.PaidAmount)
	}
	if i.PaidAmount.GreaterThan(i.TotalAmount) {
		return validationError("invoice %s is overpaid", i.InvoiceNumber)
	}
	return nil
}
