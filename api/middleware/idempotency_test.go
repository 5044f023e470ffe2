package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	return true, f.Set(ctx, key, value, ttl)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func depositRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stores/s1/deposits", strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestIdempotencyRequiresUsableKey(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	})
	mw := Idempotency(newFakeStore(), nil, 0)

	missing := httptest.NewRecorder()
	mw(handler).ServeHTTP(missing, depositRequest("", `{"amount":1000}`))
	assert.Equal(t, http.StatusBadRequest, missing.Code)

	long := httptest.NewRecorder()
	mw(handler).ServeHTTP(long, depositRequest(strings.Repeat("k", maxIdempotencyKeyLen+1), `{}`))
	assert.Equal(t, http.StatusBadRequest, long.Code)
	assert.False(t, called)
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil, time.Hour)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"balance_after":-1000}}`))
	})

	first := httptest.NewRecorder()
	mw(handler).ServeHTTP(first, depositRequest("abc", `{"amount":1000}`))
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get(replayedHeader))

	replay := httptest.NewRecorder()
	mw(handler).ServeHTTP(replay, depositRequest("abc", `{"amount":1000}`))
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	assert.Equal(t, "true", replay.Header().Get(replayedHeader))
	assert.Equal(t, `{"data":{"balance_after":-1000}}`, replay.Body.String())
	assert.Equal(t, 1, calls)

	require.Len(t, store.ttls, 1)
	for _, ttl := range store.ttls {
		assert.Equal(t, time.Hour, ttl)
	}
}

func TestIdempotencyDefaultsTTL(t *testing.T) {
	store := newFakeStore()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	Idempotency(store, nil, 0)(handler).ServeHTTP(httptest.NewRecorder(), depositRequest("k1", `{}`))
	for _, ttl := range store.ttls {
		assert.Equal(t, fallbackIdempotentTTL, ttl)
	}
}

func TestIdempotencyFreesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mw := Idempotency(store, nil, 0)

	mw(handler).ServeHTTP(httptest.NewRecorder(), depositRequest("busy", `{"amount":1}`))
	mw(handler).ServeHTTP(httptest.NewRecorder(), depositRequest("busy", `{"amount":1}`))

	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}

func TestIdempotencyFreesKeyWhenHandlerPanics(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			panic("ledger exploded")
		}
		w.WriteHeader(http.StatusCreated)
	})
	chain := Recoverer(nil)(Idempotency(store, nil, time.Hour)(handler))

	first := httptest.NewRecorder()
	chain.ServeHTTP(first, depositRequest("boom", `{"amount":1000}`))
	assert.Equal(t, http.StatusInternalServerError, first.Code)
	assert.Empty(t, store.data)

	retry := httptest.NewRecorder()
	chain.ServeHTTP(retry, depositRequest("boom", `{"amount":1000}`))
	assert.Equal(t, http.StatusCreated, retry.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil, 0)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	mw(handler).ServeHTTP(httptest.NewRecorder(), depositRequest("xyz", `{"amount":1000}`))

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, depositRequest("xyz", `{"amount":2000}`))
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, resp))
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil, 0)
	body := `{"amount":500}`

	var inner *httptest.ResponseRecorder
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A retry lands while the first request still holds the reservation.
		inner = httptest.NewRecorder()
		mw(http.NotFoundHandler()).ServeHTTP(inner, depositRequest("dup", body))
		w.WriteHeader(http.StatusCreated)
	})

	outer := httptest.NewRecorder()
	mw(handler).ServeHTTP(outer, depositRequest("dup", body))

	assert.Equal(t, http.StatusCreated, outer.Code)
	require.NotNil(t, inner)
	assert.Equal(t, http.StatusConflict, inner.Code)
	assert.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, inner))
}

func TestIdempotencyScopesKeysByActor(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})
	mw := Actor()(Idempotency(store, nil, 0)(handler))

	for _, actor := range []string{"clerk-a", "clerk-b"} {
		req := depositRequest("same", `{}`)
		req.Header.Set(actorHeader, actor)
		mw.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
	assert.Len(t, store.data, 2)
}
