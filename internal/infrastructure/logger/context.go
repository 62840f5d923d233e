package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	loggerCtxKey ctxKey = iota
	scopeCtxKey
)

// Scope names the request, tenant and acting user a unit of work runs for.
// Empty fields are unknown and never logged.
type Scope struct {
	RequestID string
	SchoolID  string
	ActorID   string
}

// merge fills the empty fields of s from prev
func (s Scope) merge(prev Scope) Scope {
	if s.RequestID == "" {
		s.RequestID = prev.RequestID
	}
	if s.SchoolID == "" {
		s.SchoolID = prev.SchoolID
	}
	if s.ActorID == "" {
		s.ActorID = prev.ActorID
	}
	return s
}

// fieldsAfter returns zap fields for values s sets that prev lacked
func (s Scope) fieldsAfter(prev Scope) []zap.Field {
	var fields []zap.Field
	add := func(key, value, old string) {
		if value != "" && value != old {
			fields = append(fields, zap.String(key, value))
		}
	}
	add("request_id", s.RequestID, prev.RequestID)
	add("school_id", s.SchoolID, prev.SchoolID)
	add("actor_id", s.ActorID, prev.ActorID)
	return fields
}

// WithContext stores logger in ctx
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerCtxKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// WithScope records s in ctx on top of any scope already there, and stores
// the context logger extended with only the fields that are new.
func WithScope(ctx context.Context, s Scope) context.Context {
	prev := ScopeFrom(ctx)
	next := s.merge(prev)
	ctx = context.WithValue(ctx, scopeCtxKey, next)
	if fields := next.fieldsAfter(prev); len(fields) > 0 {
		ctx = WithContext(ctx, FromContext(ctx).With(fields...))
	}
	return ctx
}

// ScopeFrom returns the scope recorded by WithScope
func ScopeFrom(ctx context.Context) Scope {
	s, _ := ctx.Value(scopeCtxKey).(Scope)
	return s
}

// WithTraceContext adds trace_id and span_id of the span in ctx, if any
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

// For returns the context logger with trace fields attached.
// Usage: logger.For(ctx).Info("Payment recorded", zap.String("receipt_number", n))
func For(ctx context.Context) *zap.Logger {
	return WithTraceContext(ctx, FromContext(ctx))
}
