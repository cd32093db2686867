package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/commerce-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	return true, f.Set(ctx, key, value, ttl)
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "fake:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func refundRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/8b5c/refunds", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	return req.WithContext(WithActor(req.Context(), "admin-1", enums.ActorRoleAdmin))
}

type countingHandler struct {
	calls  int
	status int
	body   string
	seen   []string
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls++
	b, _ := io.ReadAll(r.Body)
	h.seen = append(h.seen, string(b))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(h.status)
	_, _ = io.WriteString(w, h.body)
}

func guarded(store *fakeStore, next http.Handler) http.Handler {
	return NewIdempotencyGuard(store, nil).Require(MoneyIdempotencyTTL)(next)
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

func TestIdempotencyRequiresKey(t *testing.T) {
	next := &countingHandler{status: http.StatusCreated}
	h := guarded(newFakeStore(), next)

	for _, key := range []string{"", strings.Repeat("k", maxIdempotencyKeyLength+1)} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, refundRequest(key, `{"amount_cents":100}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	assert.Zero(t, next.calls)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	next := &countingHandler{status: http.StatusAccepted, body: `{"ok":true}`}
	h := guarded(store, next)

	first := httptest.NewRecorder()
	h.ServeHTTP(first, refundRequest("abc", `{"amount_cents":100}`))
	require.Equal(t, http.StatusAccepted, first.Code)
	assert.Empty(t, first.Header().Get(ReplayedHeader))
	assert.Equal(t, []string{`{"amount_cents":100}`}, next.seen, "handler sees the buffered body")

	replay := httptest.NewRecorder()
	h.ServeHTTP(replay, refundRequest("abc", `{"amount_cents":100}`))
	assert.Equal(t, http.StatusAccepted, replay.Code)
	assert.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	assert.Equal(t, "true", replay.Header().Get(ReplayedHeader))
	assert.JSONEq(t, `{"ok":true}`, replay.Body.String())
	assert.Equal(t, 1, next.calls)

	for key, ttl := range store.ttls {
		assert.Equal(t, MoneyIdempotencyTTL, ttl, key)
	}
}

func TestIdempotencyRejectsChangedBody(t *testing.T) {
	h := guarded(newFakeStore(), &countingHandler{status: http.StatusOK})

	h.ServeHTTP(httptest.NewRecorder(), refundRequest("xyz", `{"amount_cents":100}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, refundRequest("xyz", `{"amount_cents":200}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestIdempotencyReportsInFlightRequest(t *testing.T) {
	store := newFakeStore()
	var inner *httptest.ResponseRecorder
	var h http.Handler
	h = guarded(store, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = httptest.NewRecorder()
		h.ServeHTTP(inner, refundRequest("dup", `{"amount_cents":100}`))
		w.WriteHeader(http.StatusCreated)
	}))

	outer := httptest.NewRecorder()
	h.ServeHTTP(outer, refundRequest("dup", `{"amount_cents":100}`))

	assert.Equal(t, http.StatusCreated, outer.Code)
	require.NotNil(t, inner)
	assert.Equal(t, http.StatusConflict, inner.Code)
	assert.Equal(t, "1", inner.Header().Get("Retry-After"))
	assert.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, inner))
}

func TestIdempotencyForgetsServerErrors(t *testing.T) {
	store := newFakeStore()
	next := &countingHandler{status: http.StatusBadGateway}
	h := guarded(store, next)

	h.ServeHTTP(httptest.NewRecorder(), refundRequest("retry-me", `{}`))
	assert.Empty(t, store.data)

	next.status = http.StatusCreated
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, refundRequest("retry-me", `{}`))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 2, next.calls)
}

func TestIdempotencyKeysAreScopedPerActor(t *testing.T) {
	next := &countingHandler{status: http.StatusCreated}
	h := guarded(newFakeStore(), next)

	h.ServeHTTP(httptest.NewRecorder(), refundRequest("shared", `{}`))

	other := httptest.NewRequest(http.MethodPost, "/api/v1/orders/8b5c/refunds", strings.NewReader(`{}`))
	other.Header.Set(IdempotencyHeader, "shared")
	other = other.WithContext(WithActor(other.Context(), "seller-9", enums.ActorRoleSeller))
	h.ServeHTTP(httptest.NewRecorder(), other)

	assert.Equal(t, 2, next.calls)
}

func TestIdempotencyDisabledWithoutStore(t *testing.T) {
	next := &countingHandler{status: http.StatusOK}
	h := NewIdempotencyGuard(nil, nil).Require(StandardIdempotencyTTL)(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, refundRequest("", `{}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, next.calls)
}
