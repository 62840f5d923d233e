package middleware

import (
	"slices"

	"github.com/feesettle/backend/internal/infrastructure/config"
	"github.com/feesettle/backend/internal/infrastructure/logger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Request headers understood by the API
const (
	RequestIDHeader      = "X-Request-ID"
	IdempotencyKeyHeader = "Idempotency-Key"
)

// MaxRequestIDLength bounds client supplied request ids
const MaxRequestIDLength = 128

// RequestID tags each request with an id, echoed in the response header and
// carried into logs, spans and the audit trail. A client id is kept only if
// it is short and made of letters, digits, '-', '_', '.' or ':'; otherwise a
// time-ordered UUID is issued.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = newRequestID()
		}
		c.Set(logger.GinKeyRequestID, requestID)
		c.Writer.Header().Set(RequestIDHeader, requestID)
		c.Next()
	}
}

// GetRequestID returns the request id set by RequestID
func GetRequestID(c *gin.Context) string {
	return c.GetString(logger.GinKeyRequestID)
}

func validRequestID(id string) bool {
	if id == "" || len(id) > MaxRequestIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}

func newRequestID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// CORS builds the cross-origin middleware from configuration. It returns
// nil when no origin is allowed, in which case no CORS headers are sent.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	if len(cfg.AllowOrigins) == 0 {
		return nil
	}

	corsConfig := cors.DefaultConfig()
	if slices.Contains(cfg.AllowOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowOrigins
		corsConfig.AllowCredentials = true
	}
	if len(cfg.AllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.AllowMethods
	}
	corsConfig.AddAllowHeaders(cfg.AllowHeaders...)
	corsConfig.AddAllowHeaders("Authorization", RequestIDHeader, IdempotencyKeyHeader)
	corsConfig.AddExposeHeaders(RequestIDHeader, "Content-Disposition")
	if cfg.MaxAge > 0 {
		corsConfig.MaxAge = cfg.MaxAge
	}
	return cors.New(corsConfig)
}

// Secure adds hardening headers. Responses carry student balances, so
// nothing may be cached.
func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Cache-Control", "no-store")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}
