package fee

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func pay(t *testing.T, f *fixture, invoiceID uuid.UUID, amount string) {
	t.Helper()
	_, err := f.paymentService().ProcessPayment(context.Background(), f.opCtx, ProcessPaymentRequest{
		InvoiceID: invoiceID, Amount: dec(amount), Mode: "CASH",
	})
	require.NoError(t, err)
}

func TestGetSettlementSummary(t *testing.T) {
	f := newFixture(t)
	paid := f.invoiceFor(t, "Asha")
	partial := f.invoiceFor(t, "Dev")
	f.invoiceFor(t, "Eli")
	pay(t, f, paid.ID, "8000")
	pay(t, f, partial.ID, "2000")

	summary, err := f.settlementService().GetSettlementSummary(context.Background(), f.opCtx, f.year.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Totals.InvoiceCount)
	assert.True(t, summary.Totals.TotalBilled.Equal(dec("24000")))
	assert.True(t, summary.Totals.TotalPaid.Equal(dec("10000")))
	assert.True(t, summary.Totals.TotalOutstanding.Equal(dec("14000")))
	assert.True(t, summary.Totals.CollectionPercentage.Equal(dec("41.67")), summary.Totals.CollectionPercentage.String())
	assert.Equal(t, map[fee.InvoiceStatus]int{
		fee.InvoiceStatusPending: 1,
		fee.InvoiceStatusPartial: 1,
		fee.InvoiceStatusPaid:    1,
		fee.InvoiceStatusOverdue: 0,
	}, summary.StatusBreakdown)
	require.Len(t, summary.Classwise, 1)
	assert.Equal(t, "Grade 5", summary.Classwise[0].ClassName)
	assert.Equal(t, 0, summary.SettledCount)
	assert.Equal(t, 3, summary.UnsettledCount)
}

func TestGetSettlementSummary_ReportsOverdueWithoutWriting(t *testing.T) {
	f := newFixture(t)
	inv := f.invoiceFor(t, "Asha")
	f.now = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	summary, err := f.settlementService().GetSettlementSummary(context.Background(), f.opCtx, f.year.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.StatusBreakdown[fee.InvoiceStatusOverdue])
	assert.Equal(t, fee.InvoiceStatusPending, f.stored(t, inv.ID).Status)
}

func TestGetSettlementSummary_EmptyYear(t *testing.T) {
	f := newFixture(t)

	summary, err := f.settlementService().GetSettlementSummary(context.Background(), f.opCtx, f.year.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Totals.InvoiceCount)
	assert.True(t, summary.Totals.CollectionPercentage.IsZero())
	assert.Empty(t, summary.Classwise)
}

func TestGetSettlementSummary_UnknownYear(t *testing.T) {
	f := newFixture(t)
	_, err := f.settlementService().GetSettlementSummary(context.Background(), f.opCtx, uuid.New())
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestSettleYear_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	first := f.invoiceFor(t, "Asha")
	second := f.invoiceFor(t, "Dev")
	pay(t, f, first.ID, "8000")
	svc := f.settlementService()

	result, err := svc.SettleYear(context.Background(), f.opCtx, f.year.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SettledCount)
	assert.Equal(t, day(2026, 4, 10), result.SettledDate)

	settled := f.stored(t, first.ID)
	assert.True(t, settled.IsSettled)
	require.NotNil(t, settled.SettledDate)
	assert.Equal(t, day(2026, 4, 10), *settled.SettledDate)
	assert.False(t, f.stored(t, second.ID).IsSettled)

	again, err := svc.SettleYear(context.Background(), f.opCtx, f.year.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.SettledCount)

	pay(t, f, second.ID, "8000")
	f.now = f.now.AddDate(0, 0, 3)
	later, err := svc.SettleYear(context.Background(), f.opCtx, f.year.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, later.SettledCount)
	assert.Equal(t, day(2026, 4, 10), *f.stored(t, first.ID).SettledDate, "earlier settlement date is kept")
	assert.Equal(t, day(2026, 4, 13), *f.stored(t, second.ID).SettledDate)

	f.audit.AssertCalled(t, "Record", mock.Anything, mock.MatchedBy(func(e AuditEntry) bool {
		return e.Action == AuditActionSettle
	}))
	assert.Contains(t, f.publisher.types(), fee.EventTypeYearSettled)
}

func TestRefreshOverdue(t *testing.T) {
	f := newFixture(t)
	pending := f.invoiceFor(t, "Asha")
	partial := f.invoiceFor(t, "Dev")
	paid := f.invoiceFor(t, "Eli")
	pay(t, f, partial.ID, "100")
	pay(t, f, paid.ID, "8000")
	f.now = time.Date(2026, 5, 2, 0, 0, 1, 0, time.UTC)
	svc := f.settlementService()

	changed, err := svc.RefreshOverdue(context.Background(), f.opCtx, f.year.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	assert.Equal(t, fee.InvoiceStatusOverdue, f.stored(t, pending.ID).Status)
	assert.Equal(t, fee.InvoiceStatusOverdue, f.stored(t, partial.ID).Status)
	assert.Equal(t, fee.InvoiceStatusPaid, f.stored(t, paid.ID).Status)

	changed, err = svc.RefreshOverdue(context.Background(), f.opCtx, f.year.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
}

func TestRefreshOverdue_DueDateItselfIsNotOverdue(t *testing.T) {
	f := newFixture(t)
	f.invoiceFor(t, "Asha")
	f.now = time.Date(2026, 5, 1, 23, 59, 0, 0, time.UTC)

	changed, err := f.settlementService().RefreshOverdue(context.Background(), f.opCtx, f.year.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
}

type stubExporter struct {
	report SettlementReport
}

func (e *stubExporter) Export(_ context.Context, report SettlementReport) ([]byte, error) {
	e.report = report
	return []byte("xlsx"), nil
}

func (e *stubExporter) ContentType() string   { return "application/vnd.test" }
func (e *stubExporter) FileExtension() string { return ".xlsx" }

type stubArchive struct {
	keys []string
}

func (a *stubArchive) Upload(_ context.Context, key string, _ []byte, _ string) error {
	a.keys = append(a.keys, key)
	return nil
}

func TestExportAndArchiveSummary(t *testing.T) {
	f := newFixture(t)
	f.invoiceFor(t, "Asha")
	exporter := &stubExporter{}
	archive := &stubArchive{}
	svc := f.settlementService().WithExporter(exporter).WithArchive(archive)

	body, contentType, err := svc.ExportSummary(context.Background(), f.opCtx, f.year.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("xlsx"), body)
	assert.Equal(t, "application/vnd.test", contentType)
	assert.Len(t, exporter.report.Invoices, 1)
	assert.Equal(t, "2026-27", exporter.report.AcademicYear.Name)
	assert.Equal(t, ".xlsx", svc.ExportFileExtension())

	key, err := svc.ArchiveSummary(context.Background(), f.opCtx, f.year.ID)
	require.NoError(t, err)
	assert.Equal(t, "settlements/"+f.opCtx.SchoolID.String()+"/"+f.year.ID.String()+"/20260410T093000Z.xlsx", key)
	assert.Equal(t, []string{key}, archive.keys)
}

func TestExportSummary_Disabled(t *testing.T) {
	f := newFixture(t)
	svc := f.settlementService()
	assert.Empty(t, svc.ExportFileExtension())

	_, _, err := svc.ExportSummary(context.Background(), f.opCtx, f.year.ID)
	assert.True(t, errors.Is(err, shared.ErrValidation))
	_, err = svc.ArchiveSummary(context.Background(), f.opCtx, f.year.ID)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}
