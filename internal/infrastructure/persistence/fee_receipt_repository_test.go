package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/domain/shared/strategy"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReceipt(t *testing.T, inv *fee.Invoice, number, amount, key string, at time.Time) *fee.Receipt {
	t.Helper()
	b := inv.Breakups[0]
	r, err := fee.NewReceipt(fee.NewReceiptParams{
		ReceiptNumber:  number,
		Invoice:        inv,
		Amount:         dec(amount),
		Mode:           fee.PaymentModeCash,
		Reference:      "counter 2",
		IdempotencyKey: key,
		CreatedBy:      uuid.New(),
		Allocations: []strategy.Allocation{{
			LineID:          b.ID,
			HeadID:          b.HeadID,
			Label:           b.HeadName,
			AllocatedAmount: dec(amount),
			BalanceBefore:   b.Balance(),
			BalanceAfter:    b.Balance().Sub(dec(amount)),
		}},
		Now: at,
	})
	require.NoError(t, err)
	return r
}

func TestGormReceiptRepository(t *testing.T) {
	db := newTestDB(t)
	invoices := NewGormInvoiceRepository(db)
	repo := NewGormReceiptRepository(db)
	ctx := context.Background()

	school := uuid.New()
	inv := buildInvoice(t, invoiceFixture{schoolID: school, yearID: uuid.New(), number: "INV-2026-000001", lines: standardLines()})
	require.NoError(t, invoices.CreateBatch(ctx, []*fee.Invoice{inv}))

	first := newTestReceipt(t, inv, "RCP-20260410-000001", "1000", "key-1", testNow)
	second := newTestReceipt(t, inv, "RCP-20260410-000002", "500", "", testNow.Add(time.Hour))
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	t.Run("lists receipts newest first with allocations", func(t *testing.T) {
		got, err := repo.FindByInvoice(ctx, school, inv.ID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "RCP-20260410-000002", got[0].ReceiptNumber)
		assert.Equal(t, "RCP-20260410-000001", got[1].ReceiptNumber)
		require.Len(t, got[1].Allocations, 1)
		assert.True(t, got[1].Allocations[0].AmountApplied.Equal(dec("1000")))
		assert.Equal(t, "Tuition", got[1].Allocations[0].HeadName)
		assert.True(t, got[1].TotalApplied().Equal(got[1].Amount))
	})

	t.Run("finds by number", func(t *testing.T) {
		got, err := repo.FindByNumber(ctx, school, " RCP-20260410-000001 ")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, first.ID, got.ID)
		assert.Equal(t, fee.PaymentModeCash, got.Mode)
		assert.Equal(t, "counter 2", got.Reference)
	})

	t.Run("finds by idempotency key", func(t *testing.T) {
		got, err := repo.FindByIdempotencyKey(ctx, school, "key-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, first.ID, got.ID)
		assert.Equal(t, "key-1", got.IdempotencyKey)

		none, err := repo.FindByIdempotencyKey(ctx, school, "")
		require.NoError(t, err)
		assert.Nil(t, none)

		other, err := repo.FindByIdempotencyKey(ctx, uuid.New(), "key-1")
		require.NoError(t, err)
		assert.Nil(t, other)
	})

	t.Run("receipts without a key do not collide", func(t *testing.T) {
		third := newTestReceipt(t, inv, "RCP-20260410-000003", "10", "", testNow)
		assert.NoError(t, repo.Create(ctx, third))
	})

	t.Run("reused key is a concurrent modification", func(t *testing.T) {
		dup := newTestReceipt(t, inv, "RCP-20260410-000004", "10", "key-1", testNow)
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, shared.ErrConcurrentModification)
	})

	t.Run("reused number is a concurrent modification", func(t *testing.T) {
		dup := newTestReceipt(t, inv, "RCP-20260410-000001", "10", "", testNow)
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, shared.ErrConcurrentModification)
	})
}
