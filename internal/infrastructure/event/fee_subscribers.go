package event

import (
	"context"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/domain/shared/valueobject"
	"github.com/feesettle/backend/internal/infrastructure/logger"
	"github.com/feesettle/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// FeeEventTypes lists every event the fee engine publishes
var FeeEventTypes = []string{
	fee.EventTypeFeesGenerated,
	fee.EventTypePaymentReceived,
	fee.EventTypeInvoicePaid,
	fee.EventTypeYearSettled,
}

// MetricsHandler turns fee events into business counters
type MetricsHandler struct {
	metrics *telemetry.FeeMetrics
}

// NewMetricsHandler creates a MetricsHandler
func NewMetricsHandler(metrics *telemetry.FeeMetrics) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Handle records the counters for one event
func (h *MetricsHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *fee.FeesGeneratedEvent:
		h.metrics.RecordInvoicesGenerated(ctx, e.SchoolID(), e.InvoicesCreated)
	case *fee.PaymentReceivedEvent:
		h.metrics.RecordPayment(ctx, e.SchoolID(), string(e.Mode), e.Amount)
	case *fee.InvoicePaidEvent:
		h.metrics.RecordInvoicePaid(ctx, e.SchoolID())
	case *fee.YearSettledEvent:
		h.metrics.RecordInvoicesSettled(ctx, e.SchoolID(), e.SettledCount)
	}
	return nil
}

// EventTypes returns the fee events
func (h *MetricsHandler) EventTypes() []string {
	return FeeEventTypes
}

// LoggingHandler writes one structured log line per fee event
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a LoggingHandler
func NewLoggingHandler(l *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: l}
}

// Handle logs the event with its business fields
func (h *LoggingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_id", event.EventID().String()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID().String()),
	}

	switch e := event.(type) {
	case *fee.FeesGeneratedEvent:
		fields = append(fields,
			zap.Int("invoices_created", e.InvoicesCreated),
			zap.Int("students_skipped", e.StudentsSkipped),
			zap.String("total_amount", valueobject.FormatAmount(e.TotalAmount)),
		)
	case *fee.PaymentReceivedEvent:
		fields = append(fields,
			zap.String("receipt_number", e.ReceiptNumber),
			zap.String("amount", valueobject.FormatAmount(e.Amount)),
			zap.String("mode", string(e.Mode)),
			zap.String("invoice_status", string(e.InvoiceStatus)),
		)
	case *fee.InvoicePaidEvent:
		fields = append(fields, zap.String("invoice_number", e.InvoiceNumber))
	case *fee.YearSettledEvent:
		fields = append(fields, zap.Int("settled_count", e.SettledCount))
	}

	l := logger.WithTraceContext(ctx, h.logger).With(zap.String("school_id", event.SchoolID().String()))
	if requestID := logger.ScopeFrom(ctx).RequestID; requestID != "" {
		l = l.With(zap.String("request_id", requestID))
	}
	l.Info(event.EventType(), fields...)
	return nil
}

// EventTypes returns the fee events
func (h *LoggingHandler) EventTypes() []string {
	return FeeEventTypes
}
