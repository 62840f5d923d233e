package persistence

import (
	"context"
	"errors"
	"testing"

	appfee "github.com/feesettle/backend/internal/application/fee"
	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormTransactionScope(t *testing.T) {
	db := newTestDB(t)
	scope := NewGormTransactionScope(db)
	invoices := NewGormInvoiceRepository(db)
	ctx := context.Background()
	school, year := uuid.New(), uuid.New()

	t.Run("rollback discards invoices and document numbers", func(t *testing.T) {
		boom := errors.New("generation aborted")
		var created *fee.Invoice

		err := scope.Execute(ctx, func(repos appfee.TransactionalRepositories) error {
			number, err := repos.NumberGenerator().Next(ctx, school, "INV", "2026")
			require.NoError(t, err)
			assert.Equal(t, "INV-2026-000001", number)

			created = buildInvoice(t, invoiceFixture{schoolID: school, yearID: year, number: number, lines: standardLines()})
			require.NoError(t, repos.InvoiceRepo().CreateBatch(ctx, []*fee.Invoice{created}))
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := invoices.FindByIDForSchool(ctx, school, created.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("commit keeps invoice, receipt and the reused number", func(t *testing.T) {
		var created *fee.Invoice
		err := scope.Execute(ctx, func(repos appfee.TransactionalRepositories) error {
			number, err := repos.NumberGenerator().Next(ctx, school, "INV", "2026")
			if err != nil {
				return err
			}
			created = buildInvoice(t, invoiceFixture{schoolID: school, yearID: year, number: number, lines: standardLines()})
			if err := repos.InvoiceRepo().CreateBatch(ctx, []*fee.Invoice{created}); err != nil {
				return err
			}
			receipt := newTestReceipt(t, created, "RCP-20260410-000001", "100", "", testNow)
			return repos.ReceiptRepo().Create(ctx, receipt)
		})
		require.NoError(t, err)

		got, err := invoices.FindByIDForSchool(ctx, school, created.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "INV-2026-000001", got.InvoiceNumber)

		receipts, err := NewGormReceiptRepository(db).FindByInvoice(ctx, school, created.ID)
		require.NoError(t, err)
		assert.Len(t, receipts, 1)
	})
}
