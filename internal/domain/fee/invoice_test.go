package fee

import (
	"errors"
	"testing"
	"time"

	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/domain/shared/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tuitionHead   = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	transportHead = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	libraryHead   = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func untaxedLine(headID uuid.UUID, name, amount string) InvoiceLine {
	a := dec(amount)
	return InvoiceLine{
		HeadID:         headID,
		HeadName:       name,
		GrossAmount:    a,
		DiscountAmount: decimal.Zero,
		Split:          TaxSplit{Base: a, Tax: decimal.Zero, Total: a},
	}
}

// newTestInvoice builds Tuition 5000, Transport 2000, Library 1000 due 2026-05-01
func newTestInvoice(t *testing.T) *Invoice {
	t.Helper()
	inv, err := NewInvoice(NewInvoiceParams{
		SchoolID:       uuid.New(),
		InvoiceNumber:  "INV-2026-000001",
		StudentID:      uuid.New(),
		AcademicYearID: uuid.New(),
		ClassID:        uuid.New(),
		DueDate:        day(2026, 5, 1),
		Lines: []InvoiceLine{
			untaxedLine(tuitionHead, "Tuition", "5000"),
			untaxedLine(transportHead, "Transport", "2000"),
			untaxedLine(libraryHead, "Library", "1000"),
		},
		CreatedBy: uuid.New(),
		Now:       day(2026, 4, 1),
	})
	require.NoError(t, err)
	return inv
}

func allocationFor(inv *Invoice, headID uuid.UUID, amount string) strategy.Allocation {
	b := inv.FindBreakupByHead(headID)
	return strategy.Allocation{
		LineID:          b.ID,
		HeadID:          headID,
		Label:           b.HeadName,
		AllocatedAmount: dec(amount),
		BalanceBefore:   b.Balance(),
		BalanceAfter:    b.Balance().Sub(dec(amount)),
	}
}

func TestNewInvoice(t *testing.T) {
	inv := newTestInvoice(t)

	assert.Equal(t, "8000.00", inv.TotalAmount.StringFixed(2))
	assert.True(t, inv.PaidAmount.IsZero())
	assert.True(t, inv.RoundOffAmount.IsZero())
	assert.Equal(t, InvoiceStatusPending, inv.Status)
	assert.Equal(t, 1, inv.Version)
	assert.Len(t, inv.Breakups, 3)
	for _, b := range inv.Breakups {
		assert.Equal(t, inv.ID, b.InvoiceID)
	}
	require.NotNil(t, inv.CreatedBy)
	assert.NoError(t, inv.CheckInvariants())
}

func TestNewInvoice_Validation(t *testing.T) {
	base := NewInvoiceParams{
		SchoolID:       uuid.New(),
		InvoiceNumber:  "INV-1",
		StudentID:      uuid.New(),
		AcademicYearID: uuid.New(),
		DueDate:        day(2026, 5, 1),
		Lines:          []InvoiceLine{untaxedLine(tuitionHead, "Tuition", "5000")},
		Now:            day(2026, 4, 1),
	}

	t.Run("no number", func(t *testing.T) {
		p := base
		p.InvoiceNumber = ""
		_, err := NewInvoice(p)
		assert.True(t, errors.Is(err, shared.ErrValidation))
	})

	t.Run("no lines", func(t *testing.T) {
		p := base
		p.Lines = nil
		_, err := NewInvoice(p)
		assert.True(t, errors.Is(err, shared.ErrValidation))
	})

	t.Run("duplicate head", func(t *testing.T) {
		p := base
		p.Lines = []InvoiceLine{untaxedLine(tuitionHead, "Tuition", "1"), untaxedLine(tuitionHead, "Tuition", "2")}
		_, err := NewInvoice(p)
		assert.True(t, errors.Is(err, shared.ErrValidation))
	})

	t.Run("inconsistent split", func(t *testing.T) {
		p := base
		line := untaxedLine(tuitionHead, "Tuition", "100")
		line.Split.Tax = dec("1")
		p.Lines = []InvoiceLine{line}
		_, err := NewInvoice(p)
		assert.True(t, errors.Is(err, shared.ErrValidation))
	})

	t.Run("sub-cent line", func(t *testing.T) {
		p := base
		p.Lines = []InvoiceLine{untaxedLine(tuitionHead, "Tuition", "100.005")}
		_, err := NewInvoice(p)
		assert.True(t, errors.Is(err, shared.ErrValidation))
	})
}

func TestInvoice_EvaluateStatus(t *testing.T) {
	inv := newTestInvoice(t)
	beforeDue := day(2026, 4, 20)
	onDue := day(2026, 5, 1).Add(20 * time.Hour)
	afterDue := day(2026, 5, 2)

	assert.Equal(t, InvoiceStatusPending, inv.EvaluateStatus(beforeDue))
	assert.Equal(t, InvoiceStatusPending, inv.EvaluateStatus(onDue))
	assert.Equal(t, InvoiceStatusOverdue, inv.EvaluateStatus(afterDue))

	require.NoError(t, inv.ApplyAllocations([]strategy.Allocation{allocationFor(inv, libraryHead, "1000")}, beforeDue))
	assert.Equal(t, InvoiceStatusPartial, inv.Status)
	assert.Equal(t, InvoiceStatusOverdue, inv.EvaluateStatus(afterDue))

	assert.True(t, inv.RefreshStatus(afterDue))
	assert.Equal(t, InvoiceStatusOverdue, inv.Status)
	assert.False(t, inv.RefreshStatus(afterDue))
}

func TestInvoice_ValidatePayment(t *testing.T) {
	inv := newTestInvoice(t)

	assert.NoError(t, inv.ValidatePayment(dec("8000")))
	assert.True(t, errors.Is(inv.ValidatePayment(dec("0")), shared.ErrValidation))
	assert.True(t, errors.Is(inv.ValidatePayment(dec("-5")), shared.ErrValidation))
	assert.True(t, errors.Is(inv.ValidatePayment(dec("10.001")), shared.ErrValidation))

	err := inv.ValidatePayment(dec("9000"))
	assert.True(t, errors.Is(err, shared.ErrOverpayment))
	assert.Contains(t, err.Error(), "8000.00")
	for _, b := range inv.Breakups {
		assert.True(t, b.PaidAmount.IsZero())
	}
}

func TestInvoice_ApplyAllocations(t *testing.T) {
	inv := newTestInvoice(t)
	at := day(2026, 4, 10)

	err := inv.ApplyAllocations([]strategy.Allocation{
		allocationFor(inv, tuitionHead, "1500"),
		allocationFor(inv, transportHead, "1500"),
		allocationFor(inv, libraryHead, "1000"),
	}, at)
	require.NoError(t, err)

	assert.Equal(t, "4000.00", inv.PaidAmount.StringFixed(2))
	assert.Equal(t, "4000.00", inv.Outstanding().StringFixed(2))
	assert.Equal(t, InvoiceStatusPartial, inv.Status)
	assert.True(t, inv.FindBreakupByHead(libraryHead).Balance().IsZero())
	assert.Empty(t, inv.PendingEvents())
	assert.NoError(t, inv.CheckInvariants())

	lines := inv.OutstandingLines()
	require.Len(t, lines, 2)
	assert.Equal(t, tuitionHead, lines[0].HeadID)
	assert.Equal(t, "3500.00", lines[0].Balance.StringFixed(2))

	err = inv.ApplyAllocations([]strategy.Allocation{
		allocationFor(inv, tuitionHead, "3500"),
		allocationFor(inv, transportHead, "500"),
	}, at)
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusPaid, inv.Status)
	require.Len(t, inv.PendingEvents(), 1)
	assert.Equal(t, EventTypeInvoicePaid, inv.PendingEvents()[0].EventType())
}

func TestInvoice_ApplyAllocations_AllOrNothing(t *testing.T) {
	inv := newTestInvoice(t)

	err := inv.ApplyAllocations([]strategy.Allocation{
		allocationFor(inv, tuitionHead, "100"),
		allocationFor(inv, libraryHead, "1000.01"),
	}, day(2026, 4, 10))
	assert.True(t, errors.Is(err, shared.ErrOverAllocation))

	for _, b := range inv.Breakups {
		assert.True(t, b.PaidAmount.IsZero(), b.HeadName)
	}
	assert.True(t, inv.PaidAmount.IsZero())

	err = inv.ApplyAllocations([]strategy.Allocation{{LineID: uuid.New(), AllocatedAmount: dec("1")}}, day(2026, 4, 10))
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	err = inv.ApplyAllocations(nil, day(2026, 4, 10))
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestInvoice_PlanExplicitAllocation(t *testing.T) {
	t.Run("valid plan follows invoice order", func(t *testing.T) {
		inv := newTestInvoice(t)
		plan, err := inv.PlanExplicitAllocation(dec("1200"), []CustomAllocation{
			{HeadID: libraryHead, Amount: dec("200")},
			{HeadID: tuitionHead, Amount: dec("1000")},
		})
		require.NoError(t, err)
		require.Len(t, plan, 2)
		assert.Equal(t, tuitionHead, plan[0].HeadID)
		assert.Equal(t, "4000.00", plan[0].BalanceAfter.StringFixed(2))
		assert.Equal(t, libraryHead, plan[1].HeadID)
	})

	tests := []struct {
		name   string
		amount string
		custom []CustomAllocation
		want   error
	}{
		{"empty", "100", nil, shared.ErrValidation},
		{"zero line", "100", []CustomAllocation{{HeadID: tuitionHead, Amount: dec("0")}}, shared.ErrValidation},
		{"duplicate head", "200", []CustomAllocation{{HeadID: tuitionHead, Amount: dec("100")}, {HeadID: tuitionHead, Amount: dec("100")}}, shared.ErrValidation},
		{"unknown head", "100", []CustomAllocation{{HeadID: uuid.New(), Amount: dec("100")}}, shared.ErrNotFound},
		{"sum mismatch", "500", []CustomAllocation{{HeadID: tuitionHead, Amount: dec("300")}, {HeadID: libraryHead, Amount: dec("100")}}, shared.ErrAllocationMismatch},
		{"line above balance", "1500", []CustomAllocation{{HeadID: libraryHead, Amount: dec("1500")}}, shared.ErrOverAllocation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := newTestInvoice(t)
			_, err := inv.PlanExplicitAllocation(dec(tt.amount), tt.custom)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestInvoice_Settle(t *testing.T) {
	inv := newTestInvoice(t)
	on := day(2027, 3, 31)

	assert.False(t, inv.Settle(on), "unpaid invoices are not settled")

	require.NoError(t, inv.ApplyAllocations([]strategy.Allocation{
		allocationFor(inv, tuitionHead, "5000"),
		allocationFor(inv, transportHead, "2000"),
		allocationFor(inv, libraryHead, "1000"),
	}, day(2026, 4, 2)))

	assert.True(t, inv.Settle(on.Add(15*time.Hour)))
	assert.True(t, inv.IsSettled)
	require.NotNil(t, inv.SettledDate)
	assert.Equal(t, on, *inv.SettledDate)
	assert.False(t, inv.Settle(on.AddDate(0, 0, 1)))
	assert.Equal(t, on, *inv.SettledDate)

	assert.True(t, errors.Is(inv.ValidatePayment(dec("1")), shared.ErrValidation))
}

func TestInvoice_RoundOffKeepsTotalClean(t *testing.T) {
	inv := newTestInvoice(t)
	inv.Breakups[0].Amount = dec("5000.004")
	inv.RoundOffAmount = dec("-0.004")
	assert.NoError(t, inv.CheckInvariants())

	inv.RoundOffAmount = decimal.Zero
	assert.Error(t, inv.CheckInvariants())
}
