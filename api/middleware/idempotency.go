package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/commerce-core/api/responses"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"github.com/angelmondragon/commerce-core/pkg/logger"
	pkgredis "github.com/angelmondragon/commerce-core/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"

	// StandardIdempotencyTTL covers retries of ordinary writes.
	StandardIdempotencyTTL = 24 * time.Hour
	// MoneyIdempotencyTTL covers writes that create orders or move money.
	MoneyIdempotencyTTL = 7 * 24 * time.Hour

	maxIdempotencyKeyLength = 255
	maxIdempotentBodyBytes  = 1 << 20
	inFlightTTL             = time.Minute
)

const (
	recordInFlight  = "in_flight"
	recordCompleted = "completed"
)

// idempotencyRecord is what Redis holds per key: first an in-flight marker,
// then the finished response.
type idempotencyRecord struct {
	State       string `json:"state"`
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
}

// IdempotencyGuard replays the stored response of a write that already ran
// under the same Idempotency-Key. A nil store disables it.
type IdempotencyGuard struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
}

func NewIdempotencyGuard(store pkgredis.IdempotencyStore, logg *logger.Logger) *IdempotencyGuard {
	if logg == nil {
		logg = logger.Nop()
	}
	return &IdempotencyGuard{store: store, logg: logg}
}

// Require makes the Idempotency-Key header mandatory on the wrapped route and
// keeps the outcome for ttl. Server errors are not kept so a retry can run.
func (g *IdempotencyGuard) Require(ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g == nil || g.store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" || len(clientKey) > maxIdempotencyKeyLength {
				responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required").
					WithDetails(map[string]any{"max_length": maxIdempotencyKeyLength}))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotentBodyBytes))
			if err != nil {
				responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body unreadable"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := requestFingerprint(r.Method, r.URL.Path, body)
			key := g.store.IdempotencyKey(ActorRefFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, clientKey)
			ctx = g.logg.WithField(ctx, "idempotency_key", clientKey)

			marker, _ := json.Marshal(idempotencyRecord{State: recordInFlight, Fingerprint: fingerprint})
			reserved, err := g.store.SetNX(ctx, key, string(marker), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				g.answerExisting(w, r, key, fingerprint)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r.WithContext(ctx))
			g.finish(r, key, fingerprint, capture, ttl)
		})
	}
}

func (g *IdempotencyGuard) answerExisting(w http.ResponseWriter, r *http.Request, key, fingerprint string) {
	ctx := r.Context()
	raw, err := g.store.Get(ctx, key)
	if err != nil && !pkgredis.IsNil(err) {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}

	var record idempotencyRecord
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
			return
		}
	}

	switch {
	case raw != "" && record.Fingerprint != fingerprint:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.State == recordCompleted:
		body, _ := base64.StdEncoding.DecodeString(record.Body)
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set(ReplayedHeader, "true")
		w.WriteHeader(record.Status)
		_, _ = w.Write(body)
	default:
		// The first request is still running, or its marker expired between
		// SETNX and GET. Either way the client should retry shortly.
		w.Header().Set("Retry-After", "1")
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is in progress"))
	}
}

func (g *IdempotencyGuard) finish(r *http.Request, key, fingerprint string, capture *responseCapture, ttl time.Duration) {
	ctx := r.Context()
	status := capture.statusCode()
	if status >= http.StatusInternalServerError {
		if err := g.store.Del(ctx, key); err != nil {
			g.logg.Error(ctx, "release idempotency key", err)
		}
		return
	}

	payload, err := json.Marshal(idempotencyRecord{
		State:       recordCompleted,
		Fingerprint: fingerprint,
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
	})
	if err == nil {
		err = g.store.Set(ctx, key, string(payload), ttl)
	}
	if err != nil {
		g.logg.Error(ctx, "persist idempotency record", err)
	}
}

func requestFingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
