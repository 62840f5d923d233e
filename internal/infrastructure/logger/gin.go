package logger

import (
	"fmt"
	"net/http"
	"time"

	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Gin context keys shared by the logging and auth middleware
const (
	GinKeyLogger    = "logger"
	GinKeyRequestID = "request_id"
	GinKeySchoolID  = "school_id"
	GinKeyActorID   = "actor_id"
)

// AccessLogMessage is the message of the per-request line
const AccessLogMessage = "Request completed"

type accessLogConfig struct {
	skip map[string]bool
}

// AccessLogOption configures GinMiddleware
type AccessLogOption func(*accessLogConfig)

// WithSkipPaths suppresses the access line of successful requests to the
// given paths, e.g. the health probe. Failures are still logged.
func WithSkipPaths(paths ...string) AccessLogOption {
	return func(cfg *accessLogConfig) {
		for _, p := range paths {
			cfg.skip[p] = true
		}
	}
}

// GinMiddleware attaches a request-scoped logger to the gin and request
// contexts, then writes one access line per request. A request refused by a
// fee rule is an expected outcome and logs at info with its error code;
// other client errors log at warn and server errors at error.
func GinMiddleware(logger *zap.Logger, opts ...AccessLogOption) gin.HandlerFunc {
	cfg := accessLogConfig{skip: map[string]bool{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *gin.Context) {
		start := time.Now()
		base := logger.With(
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		ctx := WithScope(WithContext(c.Request.Context(), base), Scope{RequestID: c.GetString(GinKeyRequestID)})
		c.Set(GinKeyLogger, FromContext(ctx))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		if status < http.StatusBadRequest && cfg.skip[c.Request.URL.Path] {
			return
		}

		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			fields = append(fields, zap.String("query", q))
		}

		level := zapcore.InfoLevel
		switch {
		case status >= http.StatusInternalServerError:
			level = zapcore.ErrorLevel
		case status >= http.StatusBadRequest:
			level = zapcore.WarnLevel
		}
		for _, e := range c.Errors {
			if de, ok := shared.AsDomainError(e.Err); ok {
				fields = append(fields, zap.String("error_code", de.Code))
				if level == zapcore.WarnLevel {
					level = zapcore.InfoLevel
				}
				continue
			}
			fields = append(fields, zap.NamedError("error", e.Err))
		}

		// Auth may have widened the request scope during c.Next
		if ce := For(c.Request.Context()).Check(level, AccessLogMessage); ce != nil {
			ce.Write(fields...)
		}
	}
}

// Recovery turns a handler panic into a logged 500 with the standard error
// envelope and marks the request's span as failed
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			requestID := c.GetString(GinKeyRequestID)
			logger.Error("Panic recovered",
				zap.String("request_id", requestID),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Any("panic", rec),
				zap.Stack("stacktrace"),
			)

			if span := trace.SpanFromContext(c.Request.Context()); span.IsRecording() {
				span.RecordError(fmt.Errorf("panic: %v", rec))
				span.SetStatus(codes.Error, "panic")
			}

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":       "INTERNAL_ERROR",
					"message":    "An unexpected error occurred",
					"request_id": requestID,
					"retryable":  false,
				},
			})
		}()
		c.Next()
	}
}

// GetGinLogger returns the request-scoped logger, or a no-op logger outside
// GinMiddleware
func GetGinLogger(c *gin.Context) *zap.Logger {
	if zl, ok := c.Value(GinKeyLogger).(*zap.Logger); ok {
		return zl
	}
	return zap.NewNop()
}
