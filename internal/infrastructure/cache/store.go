package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrSharedStoreRequired is returned by NewIdempotencyStore when RequireShared
// is set and no Redis client is available
var ErrSharedStoreRequired = errors.New("redis is required for payment idempotency but unavailable")

// NewRedisClient connects to Redis and pings it once
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// StorePolicy decides what happens when no Redis client is available
type StorePolicy int

const (
	// PreferShared falls back to a per-process store. A retried payment is
	// then only recognised by the instance that saw the first attempt.
	PreferShared StorePolicy = iota

	// RequireShared fails instead of falling back
	RequireShared
)

// NewIdempotencyStore returns a Redis store when client is non-nil, and
// applies policy otherwise
func NewIdempotencyStore(client redis.UniversalClient, policy StorePolicy, log *zap.Logger, opts ...MemoryStoreOption) (shared.IdempotencyStore, error) {
	if client != nil {
		log.Info("Payment idempotency keys stored in Redis")
		return NewRedisIdempotencyStore(client, ""), nil
	}
	if policy == RequireShared {
		return nil, ErrSharedStoreRequired
	}
	log.Warn("Payment idempotency keys kept in process memory")
	return NewInMemoryIdempotencyStore(opts...), nil
}
