package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/feesettle/backend/internal/domain/shared"
)

const (
	defaultKeyPrefix = "feesettle:lock:"
	retryInterval    = 50 * time.Millisecond
)

// ErrNotHeld is returned by Release when the lock expired or was taken over
var ErrNotHeld = errors.New("lock not held")

// RedisLocker implements shared.Locker on Redis so that every API instance
// serialises generation and payments on the same keys
type RedisLocker struct {
	client    *redislock.Client
	keyPrefix string
}

// NewRedisLocker creates a locker on top of an existing Redis client
func NewRedisLocker(client redislock.RedisClient, keyPrefix string) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisLocker{
		client:    redislock.New(client),
		keyPrefix: keyPrefix,
	}
}

// Obtain takes the lock for key, retrying every 50ms for up to opts.Wait
func (l *RedisLocker) Obtain(ctx context.Context, key string, opts shared.LockOptions) (shared.Lock, error) {
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("lock %s requires a positive TTL", key)
	}

	lock, err := l.client.Obtain(ctx, l.keyPrefix+key, opts.TTL, &redislock.Options{
		RetryStrategy: retryStrategy(opts.Wait),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, shared.ErrLockNotObtained
		}
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}
	return &redisLock{lock: lock}, nil
}

func retryStrategy(wait time.Duration) redislock.RetryStrategy {
	attempts := int(wait / retryInterval)
	if attempts <= 0 {
		return redislock.NoRetry()
	}
	return redislock.LimitRetry(redislock.LinearBackoff(retryInterval), attempts)
}

type redisLock struct {
	lock *redislock.Lock
}

func (r *redisLock) Release(ctx context.Context) error {
	if err := r.lock.Release(ctx); err != nil {
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return ErrNotHeld
		}
		return fmt.Errorf("failed to release lock %s: %w", r.lock.Key(), err)
	}
	return nil
}

// Ensure RedisLocker implements Locker
var _ shared.Locker = (*RedisLocker)(nil)
