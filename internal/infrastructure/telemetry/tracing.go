package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer behind every fee engine span
const TracerName = "feesettle-backend"

// Span attribute keys
const (
	SpanAttrSchoolID  = "school_id"
	SpanAttrActorID   = "actor_id"
	SpanAttrRequestID = "request_id"

	SpanAttrAcademicYearID = "academic_year_id"
	SpanAttrStudentCount   = "student_count"
	SpanAttrInvoiceID      = "invoice_id"
	SpanAttrInvoiceStatus  = "invoice_status"
	SpanAttrInvoiceCount   = "invoice_count"
	SpanAttrReceiptNumber  = "receipt_number"
	SpanAttrPaymentMode    = "payment_mode"
	SpanAttrAmount         = "amount"
	SpanAttrIdempotencyKey = "idempotency_key"
	SpanAttrEventType      = "event.type"
	SpanAttrErrorCode      = "error.code"
)

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(TracerName)
}

// StartOperation starts the internal span of one fee operation, named
// "<area>.<operation>" (e.g. "payment.process_payment"). keyValues are
// alternating attribute keys and values. The caller ends the span.
func StartOperation(ctx context.Context, area, operation string, keyValues ...any) (context.Context, trace.Span) {
	return tracer().Start(ctx, area+"."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(kvAttributes(keyValues)...),
	)
}

// StartConsumer starts the span of an asynchronous delivery, such as a
// domain event reaching its subscribers
func StartConsumer(ctx context.Context, name string, keyValues ...any) (context.Context, trace.Span) {
	return tracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(kvAttributes(keyValues)...),
	)
}

// SetAttributes sets alternating key/value pairs on span. A pair whose key
// is not a string is skipped, as is a trailing key with no value.
func SetAttributes(span trace.Span, keyValues ...any) {
	if span != nil {
		span.SetAttributes(kvAttributes(keyValues)...)
	}
}

// SetAttribute sets one attribute on span
func SetAttribute(span trace.Span, key string, value any) {
	if span != nil {
		span.SetAttributes(valueAttribute(key, value))
	}
}

// AddEvent adds a named event with alternating key/value attributes
func AddEvent(span trace.Span, name string, keyValues ...any) {
	if span != nil {
		span.AddEvent(name, trace.WithAttributes(kvAttributes(keyValues)...))
	}
}

// RecordError classifies err on span:
//   - a fee rule rejection adds a "rejected" event with the error code and
//     leaves the status unset, since the service did its job
//   - cancellation by the caller adds a "cancelled" event
//   - anything else is recorded as an exception and fails the span
func RecordError(span trace.Span, err error, opts ...trace.EventOption) {
	if span == nil || err == nil {
		return
	}
	var de *shared.DomainError
	switch {
	case errors.As(err, &de):
		code := AttrErrorCode.String(de.Code)
		span.SetAttributes(code)
		span.AddEvent("rejected", trace.WithAttributes(code, attribute.String("message", de.Message)))
	case errors.Is(err, context.Canceled):
		span.AddEvent("cancelled")
	default:
		span.RecordError(err, opts...)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetOK marks span as successful
func SetOK(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

func kvAttributes(keyValues []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(keyValues)/2)
	for i := 1; i < len(keyValues); i += 2 {
		if key, ok := keyValues[i-1].(string); ok {
			attrs = append(attrs, valueAttribute(key, keyValues[i]))
		}
	}
	return attrs
}

// valueAttribute renders money with two decimals, matching receipts
func valueAttribute(key string, value any) attribute.KeyValue {
	k := attribute.Key(key)
	switch v := value.(type) {
	case string:
		return k.String(v)
	case bool:
		return k.Bool(v)
	case int:
		return k.Int(v)
	case int64:
		return k.Int64(v)
	case float64:
		return k.Float64(v)
	case []string:
		return k.StringSlice(v)
	case decimal.Decimal:
		return k.String(valueobject.FormatAmount(v))
	case uuid.UUID:
		return k.String(v.String())
	case fmt.Stringer:
		return k.String(v.String())
	}
	return k.String(fmt.Sprint(value))
}
