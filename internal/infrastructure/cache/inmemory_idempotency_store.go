package cache

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/feesettle/backend/internal/domain/shared"
)

// DefaultMaxIdempotencyKeys bounds the in-memory store. When full, the key
// closest to expiry is dropped to make room.
const DefaultMaxIdempotencyKeys = 100_000

type keyState struct {
	receipt   string
	done      bool
	expiresAt time.Time
}

// expiry is one scheduled removal. A key re-reserved or completed later
// gets a new expiry; the stale one is skipped when it surfaces.
type expiry struct {
	key string
	at  time.Time
}

type expiryQueue []expiry

func (q expiryQueue) Len() int           { return len(q) }
func (q expiryQueue) Less(i, j int) bool { return q[i].at.Before(q[j].at) }
func (q expiryQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *expiryQueue) Push(x any)        { *q = append(*q, x.(expiry)) }
func (q *expiryQueue) Pop() any {
	old := *q
	x := old[len(old)-1]
	*q = old[:len(old)-1]
	return x
}

// InMemoryIdempotencyStore keeps payment idempotency keys in process. Expired
// keys are pruned on write, so it needs no background goroutine. Only valid
// for a single API instance; use the Redis store behind a load balancer.
type InMemoryIdempotencyStore struct {
	mu      sync.Mutex
	keys    map[string]keyState
	queue   expiryQueue
	maxKeys int
	now     func() time.Time
}

// MemoryStoreOption configures an InMemoryIdempotencyStore
type MemoryStoreOption func(*InMemoryIdempotencyStore)

// WithMaxKeys overrides DefaultMaxIdempotencyKeys
func WithMaxKeys(n int) MemoryStoreOption {
	return func(s *InMemoryIdempotencyStore) {
		if n > 0 {
			s.maxKeys = n
		}
	}
}

// WithStoreClock overrides the wall clock
func WithStoreClock(now func() time.Time) MemoryStoreOption {
	return func(s *InMemoryIdempotencyStore) {
		s.now = now
	}
}

// NewInMemoryIdempotencyStore creates an empty store
func NewInMemoryIdempotencyStore(opts ...MemoryStoreOption) *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		keys:    make(map[string]keyState),
		maxKeys: DefaultMaxIdempotencyKeys,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reserve claims key unless a live entry exists; a completed entry answers
// with its receipt number
func (s *InMemoryIdempotencyStore) Reserve(_ context.Context, key string, ttl time.Duration) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.prune(now)
	if st, ok := s.keys[key]; ok {
		if st.done {
			return false, st.receipt, nil
		}
		return false, "", nil
	}

	s.put(key, keyState{expiresAt: now.Add(ttl)})
	return true, "", nil
}

// Complete records the receipt number for key
func (s *InMemoryIdempotencyStore) Complete(_ context.Context, key, result string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(key, keyState{receipt: result, done: true, expiresAt: s.now().Add(ttl)})
	return nil
}

// Release forgets key so the payment can be retried
func (s *InMemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.keys, key)
	return nil
}

// Close is a no-op
func (s *InMemoryIdempotencyStore) Close() error {
	return nil
}

// Len returns the number of live keys
func (s *InMemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prune(s.now())
	return len(s.keys)
}

func (s *InMemoryIdempotencyStore) put(key string, st keyState) {
	if _, exists := s.keys[key]; !exists && len(s.keys) >= s.maxKeys {
		s.evictOne()
	}
	s.keys[key] = st
	heap.Push(&s.queue, expiry{key: key, at: st.expiresAt})
}

// prune drops every key whose latest expiry is at or before now
func (s *InMemoryIdempotencyStore) prune(now time.Time) {
	for s.queue.Len() > 0 && !now.Before(s.queue[0].at) {
		s.dropHead()
	}
}

func (s *InMemoryIdempotencyStore) evictOne() {
	for s.queue.Len() > 0 {
		if s.dropHead() {
			return
		}
	}
}

// dropHead pops the soonest expiry and removes its key if still current
func (s *InMemoryIdempotencyStore) dropHead() bool {
	e := heap.Pop(&s.queue).(expiry)
	st, ok := s.keys[e.key]
	if !ok || !st.expiresAt.Equal(e.at) {
		return false
	}
	delete(s.keys, e.key)
	return true
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
