package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/feesettle/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// DefaultMaxBodyBytes fits a payment with a per-head allocation for every
// fee head a school could reasonably define
const DefaultMaxBodyBytes int64 = 64 << 10

// BodyLimit caps request bodies at maxBytes. A declared Content-Length over
// the cap is refused before the handler runs; chunked bodies are cut off by
// http.MaxBytesReader and surface as a bind error, which
// HandleValidationError turns into the same 413.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	limit := strconv.FormatInt(maxBytes, 10)

	return func(c *gin.Context) {
		if !carriesBody(c.Request) {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			abortTooLarge(c, limit)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func carriesBody(r *http.Request) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// isBodyTooLarge reports whether a bind error came from the body cap
func isBodyTooLarge(err error) (int64, bool) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return mbe.Limit, true
	}
	return 0, false
}

func abortTooLarge(c *gin.Context, limit string) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponse(
		dto.ErrCodeRequestTooLarge,
		"Request body exceeds "+limit+" bytes",
		GetRequestID(c),
		false,
	))
}
