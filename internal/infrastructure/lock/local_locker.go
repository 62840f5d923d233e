package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// LocalLocker implements shared.Locker inside one process. It is used when
// Redis is disabled and only a single API instance runs.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]localEntry
	now     func() time.Time
}

type localEntry struct {
	token     uuid.UUID
	expiresAt time.Time
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		entries: make(map[string]localEntry),
		now:     time.Now,
	}
}

// Obtain takes the lock for key. Expired holders are replaced.
func (l *LocalLocker) Obtain(ctx context.Context, key string, opts shared.LockOptions) (shared.Lock, error) {
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("lock %s requires a positive TTL", key)
	}

	deadline := l.now().Add(opts.Wait)
	for {
		if lock, ok := l.tryObtain(key, opts.TTL); ok {
			return lock, nil
		}
		if !l.now().Before(deadline) {
			return nil, shared.ErrLockNotObtained
		}

		timer := time.NewTimer(retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, shared.ErrLockNotObtained
		case <-timer.C:
		}
	}
}

func (l *LocalLocker) tryObtain(key string, ttl time.Duration) (*localLock, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.entries[key]; ok && now.Before(held.expiresAt) {
		return nil, false
	}

	token := uuid.New()
	l.entries[key] = localEntry{token: token, expiresAt: now.Add(ttl)}
	return &localLock{locker: l, key: key, token: token}, true
}

func (l *LocalLocker) release(key string, token uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	held, ok := l.entries[key]
	if !ok || held.token != token {
		return ErrNotHeld
	}
	delete(l.entries, key)
	return nil
}

type localLock struct {
	locker *LocalLocker
	key    string
	token  uuid.UUID
}

func (l *localLock) Release(context.Context) error {
	return l.locker.release(l.key, l.token)
}

// Ensure LocalLocker implements Locker
var _ shared.Locker = (*LocalLocker)(nil)
