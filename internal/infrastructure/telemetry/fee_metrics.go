package telemetry

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// FeeMeterName is the instrumentation scope of the fee counters
const FeeMeterName = "feesettle-backend/fee"

// FeeMetrics holds the business counters fed by committed fee operations.
type FeeMetrics struct {
	invoicesGenerated *Counter[int64]
	payments          *Counter[int64]
	paymentAmount     *Counter[float64]
	invoicesPaid      *Counter[int64]
	invoicesSettled   *Counter[int64]
}

// NewFeeMetrics creates the fee counters on meter
func NewFeeMetrics(meter metric.Meter) (*FeeMetrics, error) {
	var (
		m   FeeMetrics
		err error
	)
	if m.invoicesGenerated, err = NewCounter(meter, "fee_invoices_generated_total",
		"Invoices created by annual fee generation", "{invoice}"); err != nil {
		return nil, err
	}
	if m.payments, err = NewCounter(meter, "fee_payments_total",
		"Payments recorded against invoices", "{payment}"); err != nil {
		return nil, err
	}
	if m.paymentAmount, err = NewFloatCounter(meter, "fee_payment_amount_total",
		"Sum of recorded payment amounts", "{currency}"); err != nil {
		return nil, err
	}
	if m.invoicesPaid, err = NewCounter(meter, "fee_invoices_paid_total",
		"Invoices that became fully paid", "{invoice}"); err != nil {
		return nil, err
	}
	if m.invoicesSettled, err = NewCounter(meter, "fee_invoices_settled_total",
		"Invoices marked settled", "{invoice}"); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordInvoicesGenerated adds count generated invoices for a school
func (m *FeeMetrics) RecordInvoicesGenerated(ctx context.Context, schoolID uuid.UUID, count int) {
	if count <= 0 {
		return
	}
	m.invoicesGenerated.Add(ctx, int64(count), AttrSchoolID.String(schoolID.String()))
}

// RecordPayment counts one payment and adds its amount
func (m *FeeMetrics) RecordPayment(ctx context.Context, schoolID uuid.UUID, mode string, amount decimal.Decimal) {
	attrs := []attribute.KeyValue{AttrSchoolID.String(schoolID.String()), AttrPaymentMode.String(mode)}
	m.payments.Inc(ctx, attrs...)
	m.paymentAmount.Add(ctx, amount.InexactFloat64(), attrs...)
}

// RecordInvoicePaid counts one invoice reaching PAID
func (m *FeeMetrics) RecordInvoicePaid(ctx context.Context, schoolID uuid.UUID) {
	m.invoicesPaid.Inc(ctx, AttrSchoolID.String(schoolID.String()))
}

// RecordInvoicesSettled adds count settled invoices
func (m *FeeMetrics) RecordInvoicesSettled(ctx context.Context, schoolID uuid.UUID, count int) {
	if count <= 0 {
		return
	}
	m.invoicesSettled.Add(ctx, int64(count), AttrSchoolID.String(schoolID.String()))
}
