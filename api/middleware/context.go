package middleware

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/lensdist-backend/pkg/logger"
)

type ctxKey int

const (
	actorKey ctxKey = iota
	storeKey
)

const (
	actorHeader   = "X-Actor"
	maxActorRunes = 128
)

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// ActorFromContext returns the operator recorded by Actor, or "".
func ActorFromContext(ctx context.Context) string { return stringValue(ctx, actorKey) }

// StoreIDFromContext returns the {storeId} captured by StoreScope, or "".
func StoreIDFromContext(ctx context.Context) string { return stringValue(ctx, storeKey) }

func WithActor(ctx context.Context, actor string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey, actor)
}

func WithStoreID(ctx context.Context, storeID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, storeKey, storeID)
}

// Actor records the operator named in X-Actor. It becomes processed_by on
// ledger rows and scopes idempotency keys. Authentication is upstream.
func Actor() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor := clampActor(r.Header.Get(actorHeader)); actor != "" {
				r = r.WithContext(WithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clampActor(raw string) string {
	actor := strings.TrimSpace(raw)
	if utf8.RuneCountInString(actor) <= maxActorRunes {
		return actor
	}
	return string([]rune(actor)[:maxActorRunes])
}

// StoreScope copies the {storeId} route parameter into the context and the log fields.
func StoreScope(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "storeId")
			if id != "" {
				ctx := WithStoreID(r.Context(), id)
				if logg != nil {
					ctx = logg.WithStoreID(ctx, id)
				}
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}
