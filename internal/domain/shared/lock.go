package shared

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotObtained is returned when a keyed lock is held elsewhere for
// longer than the caller was willing to wait
var ErrLockNotObtained = errors.New("lock not obtained")

// LockOptions controls how a keyed lock is taken
type LockOptions struct {
	// TTL bounds how long the lock is held if the holder dies
	TTL time.Duration
	// Wait is how long to keep retrying while the lock is held elsewhere.
	// Zero fails immediately.
	Wait time.Duration
}

// Lock is a held keyed lock
type Lock interface {
	Release(ctx context.Context) error
}

// Locker provides mutual exclusion per key across every process sharing
// the same backend
type Locker interface {
	Obtain(ctx context.Context, key string, opts LockOptions) (Lock, error)
}
