// Package middleware provides the gin middleware of the fee API.
package middleware

import (
	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/infrastructure/logger"
	"github.com/feesettle/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// spanIdentity maps gin context keys to server span attributes
var spanIdentity = [...]struct {
	ginKey string
	attr   string
}{
	{logger.GinKeyRequestID, telemetry.SpanAttrRequestID},
	{logger.GinKeySchoolID, telemetry.SpanAttrSchoolID},
	{logger.GinKeyActorID, telemetry.SpanAttrActorID},
}

// Tracing returns the server span handlers: otelgin, which names spans after
// the route ("POST /api/v1/invoices/:id/payments"), then annotateSpan. Install
// both with engine.Use(Tracing(name)...). Without options the global tracer
// provider and propagators are used.
func Tracing(serviceName string, opts ...otelgin.Option) []gin.HandlerFunc {
	if serviceName == "" {
		serviceName = telemetry.TracerName
	}
	return []gin.HandlerFunc{otelgin.Middleware(serviceName, opts...), annotateSpan}
}

// annotateSpan tags the server span once the request has been handled, so
// identity set later by JWTAuthMiddleware is included. A request refused by
// a fee rule also gets the rule's error code.
func annotateSpan(c *gin.Context) {
	c.Next()

	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(spanIdentity))
	for _, id := range spanIdentity {
		if v := c.GetString(id.ginKey); v != "" {
			attrs = append(attrs, attribute.String(id.attr, v))
		}
	}
	span.SetAttributes(attrs...)

	for _, e := range c.Errors {
		if _, ok := shared.AsDomainError(e.Err); ok {
			telemetry.RecordError(span, e.Err)
		}
	}
}
