package telemetry_test

import (
	"context"
	"testing"

	"github.com/feesettle/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func intSum(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestFeeMetrics_Counters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := telemetry.NewFeeMetrics(provider.Meter(telemetry.FeeMeterName))
	require.NoError(t, err)

	ctx := context.Background()
	school := uuid.New()
	m.RecordInvoicesGenerated(ctx, school, 3)
	m.RecordInvoicesGenerated(ctx, school, 0)
	m.RecordPayment(ctx, school, "CASH", decimal.RequireFromString("4000.00"))
	m.RecordPayment(ctx, school, "UPI", decimal.RequireFromString("250.50"))
	m.RecordInvoicePaid(ctx, school)
	m.RecordInvoicesSettled(ctx, school, 2)

	got := collect(t, reader)
	assert.Equal(t, int64(3), intSum(t, got["fee_invoices_generated_total"]))
	assert.Equal(t, int64(2), intSum(t, got["fee_payments_total"]))
	assert.Equal(t, int64(1), intSum(t, got["fee_invoices_paid_total"]))
	assert.Equal(t, int64(2), intSum(t, got["fee_invoices_settled_total"]))

	amount, ok := got["fee_payment_amount_total"].Data.(metricdata.Sum[float64])
	require.True(t, ok)
	var total float64
	for _, dp := range amount.DataPoints {
		total += dp.Value
	}
	assert.InDelta(t, 4250.50, total, 0.001)
}
