package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers client-supplied request keys so that a retried
// request is answered with the outcome of the first attempt.
type IdempotencyStore interface {
	// Reserve claims key for an in-flight request. When the key is already
	// known, reserved is false and result holds the stored outcome, or is
	// empty while the first attempt is still running.
	Reserve(ctx context.Context, key string, ttl time.Duration) (reserved bool, result string, err error)

	// Complete stores the outcome of the request that reserved key
	Complete(ctx context.Context, key, result string, ttl time.Duration) error

	// Release forgets key so a failed attempt can be retried
	Release(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}
