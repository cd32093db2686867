package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	paymentwebhook "github.com/angelmondragon/commerce-core/internal/webhooks/payments"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
)

const (
	currentSecret  = "whsec_current"
	previousSecret = "whsec_previous"
)

type staticSecrets []string

func (s staticSecrets) SigningSecrets() []string { return s }

type fakeStripeWebhookService struct {
	calls int
	last  *stripe.Event
	ack   paymentwebhook.Ack
	err   error
}

func (f *fakeStripeWebhookService) HandleEvent(_ context.Context, event *stripe.Event) (paymentwebhook.Ack, error) {
	f.calls++
	f.last = event
	return f.ack, f.err
}

func serve(t *testing.T, svc *fakeStripeWebhookService, payload []byte, header string) *httptest.ResponseRecorder {
	t.Helper()
	handler := StripeWebhook(svc, staticSecrets{currentSecret, previousSecret}, time.Minute, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if header != "" {
		req.Header.Set("Stripe-Signature", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func intentEvent(t *testing.T, intentRef string) []byte {
	t.Helper()
	rawIntent, err := json.Marshal(map[string]any{"id": intentRef, "object": "payment_intent", "status": "succeeded"})
	require.NoError(t, err)
	payload, err := json.Marshal(&stripe.Event{
		ID:         "evt_" + uuid.NewString(),
		Type:       stripe.EventTypePaymentIntentSucceeded,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: rawIntent},
	})
	require.NoError(t, err)
	return payload
}

func sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeWebhookAcknowledgesVerifiedEvent(t *testing.T) {
	svc := &fakeStripeWebhookService{ack: paymentwebhook.Ack{EventID: uuid.New(), Outcome: enums.WebhookOutcomeApplied}}
	payload := intentEvent(t, "pi_123")

	rec := serve(t, svc, payload, sign(payload, currentSecret, time.Now()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, svc.calls)
	require.NotNil(t, svc.last)
	assert.Equal(t, stripe.EventTypePaymentIntentSucceeded, svc.last.Type)
}

func TestStripeWebhookAcceptsPreviousSecretDuringRotation(t *testing.T) {
	svc := &fakeStripeWebhookService{ack: paymentwebhook.Ack{Outcome: enums.WebhookOutcomeApplied}}
	payload := intentEvent(t, "pi_456")

	rec := serve(t, svc, payload, sign(payload, previousSecret, time.Now()))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.calls)
}

func TestStripeWebhookDuplicateStillAnswers200(t *testing.T) {
	svc := &fakeStripeWebhookService{ack: paymentwebhook.Ack{EventID: uuid.New(), Outcome: enums.WebhookOutcomeApplied, Duplicate: true}}
	payload := intentEvent(t, "pi_123")

	rec := serve(t, svc, payload, sign(payload, currentSecret, time.Now()))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data paymentwebhook.Ack `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Data.Duplicate)
}

func TestStripeWebhookRejectsBadDeliveries(t *testing.T) {
	payload := intentEvent(t, "pi_123")
	cases := map[string]struct {
		payload []byte
		header  string
	}{
		"missing signature": {payload: payload},
		"unknown secret":    {payload: payload, header: sign(payload, "whsec_other", time.Now())},
		"garbled header":    {payload: payload, header: "t=1,v1=invalid"},
		"stale timestamp":   {payload: payload, header: sign(payload, currentSecret, time.Now().Add(-time.Hour))},
		"oversized body":    {payload: []byte(strings.Repeat("x", maxWebhookBody+1)), header: "t=1,v1=x"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &fakeStripeWebhookService{}
			rec := serve(t, svc, tc.payload, tc.header)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, svc.calls)
		})
	}
}

func TestStripeWebhookSurfacesRetryableFailures(t *testing.T) {
	svc := &fakeStripeWebhookService{err: pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")}
	payload := intentEvent(t, "pi_missing")

	rec := serve(t, svc, payload, sign(payload, currentSecret, time.Now()))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStripeWebhookWithoutSecretsIsInternalError(t *testing.T) {
	handler := StripeWebhook(&fakeStripeWebhookService{}, nil, 0, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
