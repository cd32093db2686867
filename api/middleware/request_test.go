package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/angelmondragon/commerce-core/pkg/logger"
	"github.com/angelmondragon/commerce-core/pkg/types"
)

func TestRequestIDKeepsSafeInboundID(t *testing.T) {
	var seen string
	handler := RequestID(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "checkout-42:retry.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "checkout-42:retry.1" {
		t.Fatalf("expected inbound id propagated, got %q", seen)
	}
	if got := rec.Header().Get(requestIDHeader); got != seen {
		t.Fatalf("expected response header %q, got %q", seen, got)
	}
}

func TestRequestIDReplacesUnsafeInboundID(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"injection": "abc\",\"level\":\"error",
		"too long":  strings.Repeat("a", maxRequestIDSize+1),
	}
	for name, inbound := range cases {
		t.Run(name, func(t *testing.T) {
			handler := RequestID(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(requestIDHeader, inbound)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(requestIDHeader)
			if got == "" || got == inbound {
				t.Fatalf("expected minted id, got %q", got)
			}
		})
	}
}

func TestRecovererWritesRetryableEnvelope(t *testing.T) {
	handler := RequestID(logger.Nop())(Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("ledger exploded")
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
	req.Header.Set(requestIDHeader, "req-panic")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body types.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != "INTERNAL_ERROR" || !body.Error.Retryable {
		t.Fatalf("unexpected error body: %+v", body.Error)
	}
	if strings.Contains(body.Error.Message, "ledger exploded") {
		t.Fatalf("panic value leaked to client: %q", body.Error.Message)
	}
	if body.Error.RequestID != "req-panic" {
		t.Fatalf("expected request id in error body, got %q", body.Error.RequestID)
	}
}

func TestRequestIDFallsBackToCorrelationID(t *testing.T) {
	handler := RequestID(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(correlationIDHeader, "corr-7")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(requestIDHeader); got != "corr-7" {
		t.Fatalf("expected correlation id adopted, got %q", got)
	}
}

func TestRecovererLeavesStartedResponseAlone(t *testing.T) {
	handler := Recoverer(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late failure")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected original status kept, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected no error envelope appended, got %q", rec.Body.String())
	}
}

func TestRecovererRepanicsOnAbort(t *testing.T) {
	handler := Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler re-panic, got %v", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

type observedRequest struct {
	method, route string
	status        int
}

type fakeObserver struct {
	seen []observedRequest
}

func (f *fakeObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	f.seen = append(f.seen, observedRequest{method: method, route: route, status: status})
}

func TestLoggingReportsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "api", Level: zerolog.InfoLevel, Output: &buf})
	observer := &fakeObserver{}

	r := chi.NewRouter()
	r.Use(Logging(logg, observer))
	r.Get("/api/v1/orders/{orderId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/orders/7f1c", nil))

	if len(observer.seen) != 1 {
		t.Fatalf("expected one observation, got %d", len(observer.seen))
	}
	got := observer.seen[0]
	if got.route != "/api/v1/orders/{orderId}" || got.status != http.StatusNotFound || got.method != http.MethodGet {
		t.Fatalf("unexpected observation: %+v", got)
	}

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["route"] != "/api/v1/orders/{orderId}" || line["path"] != "/api/v1/orders/7f1c" {
		t.Fatalf("unexpected access log: %v", line)
	}
}

func TestLoggingDefaultsStatusWhenHandlerWritesNothing(t *testing.T) {
	observer := &fakeObserver{}
	handler := Logging(nil, observer)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if len(observer.seen) != 1 || observer.seen[0].status != http.StatusOK {
		t.Fatalf("expected implicit 200, got %+v", observer.seen)
	}
}
