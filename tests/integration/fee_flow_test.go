package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"

	appfee "github.com/feesettle/backend/internal/application/fee"
	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeeLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewSharedTestDB(t)
	s := newSchool(t, tdb.DB, 3)
	s.addDiscount(t, s.Students[0], &s.Tuition, fee.DiscountKindPercent, "10")
	svc := newServices(t, tdb.DB)
	ctx := context.Background()

	gen := svc.generate(t, s)
	require.Equal(t, 3, gen.InvoicesCreated)
	assert.Empty(t, gen.StudentsSkipped)
	assert.Equal(t, 1, gen.DiscountsApplied)
	assert.True(t, decimal.RequireFromString("23500").Equal(gen.TotalAmount), gen.TotalAmount.String())

	t.Run("generating again skips everyone", func(t *testing.T) {
		again := svc.generate(t, s)
		assert.Equal(t, 0, again.InvoicesCreated)
		require.Len(t, again.StudentsSkipped, 3)
		for _, sk := range again.StudentsSkipped {
			assert.Equal(t, appfee.SkipReasonAlreadyInvoiced, sk.Reason)
		}
	})

	byStudent := make(map[uuid.UUID]appfee.InvoiceView)
	for _, id := range gen.InvoiceIDs {
		view, err := svc.Queries.GetInvoice(ctx, s.opCtx(), id)
		require.NoError(t, err)
		byStudent[view.StudentID] = *view
	}
	discounted := byStudent[s.Students[0].ID]
	full := byStudent[s.Students[1].ID]
	partial := byStudent[s.Students[2].ID]
	assert.True(t, decimal.RequireFromString("7500").Equal(discounted.TotalAmount))
	assert.True(t, decimal.RequireFromString("500").Equal(discounted.DiscountAmount))

	t.Run("full payment in two parts", func(t *testing.T) {
		first, err := svc.pay(ctx, s, full.ID, "6000", "")
		require.NoError(t, err)
		assert.Equal(t, fee.InvoiceStatusPartial, first.InvoiceStatus)
		require.Len(t, first.Allocations, 3)

		second, err := svc.pay(ctx, s, full.ID, "2000", "")
		require.NoError(t, err)
		assert.Equal(t, fee.InvoiceStatusPaid, second.InvoiceStatus)
		assert.True(t, second.InvoiceBalance.IsZero())
		assert.NotEqual(t, first.ReceiptNumber, second.ReceiptNumber)

		receipts, err := svc.Queries.ListReceipts(ctx, s.opCtx(), full.ID)
		require.NoError(t, err)
		assert.Len(t, receipts, 2)
	})

	t.Run("overpayment is rejected without side effects", func(t *testing.T) {
		_, err := svc.pay(ctx, s, full.ID, "0.01", "")
		requireCode(t, err, shared.CodeOverpayment)
	})

	t.Run("custom allocation to one head", func(t *testing.T) {
		res, err := svc.Payments.ProcessPayment(ctx, s.opCtx(), appfee.ProcessPaymentRequest{
			InvoiceID: partial.ID,
			Amount:    decimal.NewFromInt(2000),
			Mode:      string(fee.PaymentModeUPI),
			Reference: "UPI-778812",
			CustomAllocations: []fee.CustomAllocation{
				{HeadID: s.Transport.ID, Amount: decimal.NewFromInt(2000)},
			},
		})
		require.NoError(t, err)
		require.Len(t, res.Allocations, 1)
		assert.Equal(t, s.Transport.ID, res.Allocations[0].HeadID)
		assert.True(t, res.Allocations[0].BalanceAfter.IsZero())
	})

	t.Run("summary and settlement", func(t *testing.T) {
		summary, err := svc.Settlements.GetSettlementSummary(ctx, s.opCtx(), s.Year.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, summary.Totals.InvoiceCount)
		assert.True(t, decimal.RequireFromString("23500").Equal(summary.Totals.TotalBilled))
		assert.True(t, decimal.RequireFromString("10000").Equal(summary.Totals.TotalPaid))
		assert.True(t, decimal.RequireFromString("13500").Equal(summary.Totals.TotalOutstanding))
		assert.Equal(t, 1, summary.StatusBreakdown[fee.InvoiceStatusPaid])
		assert.Equal(t, 1, summary.StatusBreakdown[fee.InvoiceStatusPartial])
		assert.Equal(t, 1, summary.StatusBreakdown[fee.InvoiceStatusPending])

		settled, err := svc.Settlements.SettleYear(ctx, s.opCtx(), s.Year.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, settled.SettledCount)

		view, err := svc.Queries.GetInvoice(ctx, s.opCtx(), full.ID)
		require.NoError(t, err)
		assert.True(t, view.IsSettled)

		again, err := svc.Settlements.SettleYear(ctx, s.opCtx(), s.Year.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, again.SettledCount)
	})

	t.Run("audit trail is written", func(t *testing.T) {
		var n int64
		require.NoError(t, tdb.DB.Model(&models.AuditLogModel{}).Where("school_id = ?", s.ID).Count(&n).Error)
		assert.Positive(t, n)
	})
}

func TestSchoolIsolation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewSharedTestDB(t)
	a := newSchool(t, tdb.DB, 1)
	b := newSchool(t, tdb.DB, 1)
	svc := newServices(t, tdb.DB)
	ctx := context.Background()

	gen := svc.generate(t, a)
	require.Len(t, gen.InvoiceIDs, 1)
	invoiceID := gen.InvoiceIDs[0]

	_, err := svc.Queries.GetInvoice(ctx, b.opCtx(), invoiceID)
	requireCode(t, err, shared.CodeNotFound)

	_, err = svc.pay(ctx, b, invoiceID, "100", "")
	requireCode(t, err, shared.CodeNotFound)

	_, err = svc.Settlements.GetSettlementSummary(ctx, b.opCtx(), a.Year.ID)
	requireCode(t, err, shared.CodeNotFound)

	list, err := svc.Queries.ListInvoices(ctx, b.opCtx(), fee.InvoiceFilter{})
	require.NoError(t, err)
	assert.Empty(t, list.Items)
}

func TestInvoiceNumbersAreUniqueUnderConcurrentGeneration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := NewSharedTestDB(t)
	client := NewSharedRedis(t)

	// Two schools generate at the same time through separate instances
	schools := []*school{newSchool(t, tdb.DB, 5), newSchool(t, tdb.DB, 5)}
	instances := []*services{
		newServices(t, tdb.DB, withLocker(redisLocker(client))),
		newServices(t, tdb.DB, withLocker(redisLocker(client))),
	}

	var wg sync.WaitGroup
	results := make([]*appfee.GenerationResult, len(schools))
	errs := make([]error, len(schools))
	for i := range schools {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = instances[i].Generation.GenerateAnnualFees(context.Background(), schools[i].opCtx(),
				appfee.GenerateFeesRequest{AcademicYearID: schools[i].Year.ID})
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := range schools {
		require.NoError(t, errs[i])
		assert.Equal(t, 5, results[i].InvoicesCreated)

		list, err := instances[i].Queries.ListInvoices(context.Background(), schools[i].opCtx(), fee.InvoiceFilter{})
		require.NoError(t, err)
		for _, inv := range list.Items {
			key := fmt.Sprintf("%s/%s", schools[i].ID, inv.InvoiceNumber)
			assert.False(t, seen[key], "duplicate invoice number %s", inv.InvoiceNumber)
			seen[key] = true
		}
	}
}
