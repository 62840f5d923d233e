package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

const (
	defaultIdempotencyPrefix = "feesettle:idempotency:"

	// Values stored under a key: a pending marker while the first request
	// runs, then donePrefix followed by the recorded result.
	pendingMarker = "pending"
	donePrefix    = "done:"
)

// RedisIdempotencyStore implements IdempotencyStore using Redis
// This is suitable for distributed deployments where multiple instances
// need to share idempotency state
type RedisIdempotencyStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisIdempotencyStore creates a store with an existing Redis client.
// The client is shared; Close does not close it.
func NewRedisIdempotencyStore(client redis.UniversalClient, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = defaultIdempotencyPrefix
	}
	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Reserve claims key with SETNX. When the key exists the stored result is
// returned, empty while the first request is still in flight.
func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, string, error) {
	redisKey := s.keyPrefix + key

	ok, err := s.client.SetNX(ctx, redisKey, pendingMarker, ttl).Result()
	if err != nil {
		return false, "", fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if ok {
		return true, "", nil
	}

	value, err := s.client.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; the caller may retry.
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to read idempotency key: %w", err)
	}
	return false, decodeResult(value), nil
}

// Complete records the result for key
func (s *RedisIdempotencyStore) Complete(ctx context.Context, key, result string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, donePrefix+result, ttl).Err(); err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}

// Release deletes key
func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// Close is a no-op; the Redis client belongs to the caller
func (s *RedisIdempotencyStore) Close() error {
	return nil
}

func decodeResult(value string) string {
	if !strings.HasPrefix(value, donePrefix) {
		return ""
	}
	return strings.TrimPrefix(value, donePrefix)
}

// Ensure RedisIdempotencyStore implements IdempotencyStore
var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
