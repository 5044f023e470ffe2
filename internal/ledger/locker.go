package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrLockTimeout is returned when a store lock could not be taken in time.
var ErrLockTimeout = errors.New("ledger lock wait timed out")

const (
	defaultLockTTL       = 30 * time.Second
	defaultRetryInterval = 25 * time.Millisecond
	releaseTimeout       = 2 * time.Second
)

// Locker serializes postings per store. The returned release func must be
// called exactly once.
type Locker interface {
	Acquire(ctx context.Context, storeID uuid.UUID, timeout time.Duration) (func(), error)
}

// MemoryLocker keys one single-slot channel per store inside this process.
// A slot is dropped once no caller holds or waits on it, so the map only
// covers stores with postings in flight.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*memorySlot
}

type memorySlot struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[uuid.UUID]*memorySlot)}
}

func (l *MemoryLocker) join(storeID uuid.UUID) *memorySlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[storeID]
	if !ok {
		slot = &memorySlot{ch: make(chan struct{}, 1)}
		l.slots[storeID] = slot
	}
	slot.refs++
	return slot
}

func (l *MemoryLocker) leave(storeID uuid.UUID, slot *memorySlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, storeID)
	}
}

func (l *MemoryLocker) Acquire(ctx context.Context, storeID uuid.UUID, timeout time.Duration) (func(), error) {
	slot := l.join(storeID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case slot.ch <- struct{}{}:
	case <-timer.C:
		l.leave(storeID, slot)
		return nil, ErrLockTimeout
	case <-ctx.Done():
		l.leave(storeID, slot)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			l.leave(storeID, slot)
		})
	}, nil
}

// lockStore is the slice of pkg/redis.Client used by RedisLocker.
type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key, owner string) (bool, error)
	LockKey(scope, id string) string
}

// RedisLocker holds the store lock in Redis so API replicas share it.
type RedisLocker struct {
	client lockStore
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLocker(client lockStore, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for ledger locker")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{client: client, ttl: ttl, retry: defaultRetryInterval}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, storeID uuid.UUID, timeout time.Duration) (func(), error) {
	key := l.client.LockKey("ledger", storeID.String())
	owner := uuid.NewString()
	deadline := time.Now().Add(timeout)

	for {
		ok, err := l.client.SetNX(ctx, key, owner, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("setnx ledger lock: %w", err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() { l.release(key, owner) })
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

// release runs on a fresh context so a cancelled request still frees the
// key. Errors are dropped; the TTL bounds how long a stuck key survives.
func (l *RedisLocker) release(key, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	_, _ = l.client.ReleaseLease(ctx, key, owner)
}
