package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLeaseTTL = time.Hour

// Lock keeps two cron-worker replicas from running the same cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key, owner string) (bool, error)
	LockKey(scope, id string) string
}

// RedisLock is a per-environment lease on the cron cycle. The TTL must
// outlast the slowest cycle or a second replica may start mid-run.
type RedisLock struct {
	store leaseStore
	key   string
	ttl   time.Duration
	owner string
}

func NewRedisLock(store leaseStore, env string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for cron lock")
	}
	if env == "" {
		env = "local"
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLock{store: store, key: store.LockKey("cron", env), ttl: ttl}, nil
}

// Key is the Redis key the lease lives under.
func (l *RedisLock) Key() string { return l.key }

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire cron lease: %w", err)
	}
	if !ok {
		return false, nil
	}
	l.owner = owner
	return true, nil
}

// Release is a no-op unless this instance took the lease.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""
	if _, err := l.store.ReleaseLease(ctx, l.key, owner); err != nil {
		return fmt.Errorf("release cron lease: %w", err)
	}
	return nil
}
