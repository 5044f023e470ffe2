package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerSerializesOneStore(t *testing.T) {
	locker := NewMemoryLocker()
	storeID := uuid.New()

	release, err := locker.Acquire(context.Background(), storeID, time.Second)
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), storeID, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)

	other, err := locker.Acquire(context.Background(), uuid.New(), 10*time.Millisecond)
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := locker.Acquire(context.Background(), storeID, 10*time.Millisecond)
	require.NoError(t, err)
	again()
}

func TestMemoryLockerHonoursContext(t *testing.T) {
	locker := NewMemoryLocker()
	storeID := uuid.New()
	release, err := locker.Acquire(context.Background(), storeID, time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Acquire(ctx, storeID, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryLockerDropsIdleSlots(t *testing.T) {
	locker := NewMemoryLocker()
	storeID := uuid.New()

	release, err := locker.Acquire(context.Background(), storeID, time.Second)
	require.NoError(t, err)
	_, err = locker.Acquire(context.Background(), storeID, 5*time.Millisecond)
	require.ErrorIs(t, err, ErrLockTimeout)
	assert.Len(t, locker.slots, 1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, err := locker.Acquire(context.Background(), uuid.New(), time.Second)
			if assert.NoError(t, err) {
				next()
			}
		}()
	}
	wg.Wait()

	release()
	assert.Empty(t, locker.slots)
}

type fakeLockStore struct {
	mu     sync.Mutex
	data   map[string]string
	setErr error
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{data: map[string]string{}}
}

func (f *fakeLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return false, f.setErr
	}
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = value.(string)
	return true, nil
}

func (f *fakeLockStore) ReleaseLease(_ context.Context, key, owner string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[key] != owner {
		return false, nil
	}
	delete(f.data, key)
	return true, nil
}

func (f *fakeLockStore) LockKey(scope, id string) string {
	return "ld:lock:" + scope + ":" + id
}

func (f *fakeLockStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

func TestRedisLockerAcquireAndRelease(t *testing.T) {
	store := newFakeLockStore()
	locker, err := NewRedisLocker(store, time.Minute)
	require.NoError(t, err)
	storeID := uuid.New()
	key := "ld:lock:ledger:" + storeID.String()

	release, err := locker.Acquire(context.Background(), storeID, time.Second)
	require.NoError(t, err)
	assert.True(t, store.has(key))

	_, err = locker.Acquire(context.Background(), storeID, 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)

	release()
	assert.False(t, store.has(key))

	second, err := locker.Acquire(context.Background(), storeID, 30*time.Millisecond)
	require.NoError(t, err)
	second()
}

func TestRedisLockerLeavesForeignOwnerAlone(t *testing.T) {
	store := newFakeLockStore()
	locker, err := NewRedisLocker(store, time.Minute)
	require.NoError(t, err)
	storeID := uuid.New()
	key := "ld:lock:ledger:" + storeID.String()

	release, err := locker.Acquire(context.Background(), storeID, time.Second)
	require.NoError(t, err)

	// The TTL lapsed and another writer took the key.
	store.mu.Lock()
	store.data[key] = "someone-else"
	store.mu.Unlock()

	release()
	assert.True(t, store.has(key))
}

func TestRedisLockerSurfacesStoreErrors(t *testing.T) {
	store := newFakeLockStore()
	store.setErr = errors.New("connection refused")
	locker, err := NewRedisLocker(store, 0)
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), uuid.New(), time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockTimeout)

	_, err = NewRedisLocker(nil, time.Second)
	require.Error(t, err)
}
