package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/commerce-core/api/responses"
	paymentwebhook "github.com/angelmondragon/commerce-core/internal/webhooks/payments"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"github.com/angelmondragon/commerce-core/pkg/logger"
)

const maxWebhookBody = 1 << 20

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (paymentwebhook.Ack, error)
}

// SecretSource lists the endpoint secrets a delivery may be signed with.
type SecretSource interface {
	SigningSecrets() []string
}

// StripeWebhook verifies the signature and hands the event to the reconciler.
// Duplicates and ignored types acknowledge with 200; any error lets Stripe retry.
func StripeWebhook(svc StripeWebhookService, secrets SecretSource, tolerance time.Duration, logg *logger.Logger) http.HandlerFunc {
	if logg == nil {
		logg = logger.Nop()
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || secrets == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhooks not configured"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "webhook payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := verify(payload, sigHeader, secrets.SigningSecrets(), tolerance)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature"))
			return
		}

		ctx = logg.WithFields(ctx, map[string]any{
			"external_event_id": event.ID,
			"event_type":        string(event.Type),
		})
		if event.APIVersion != "" && event.APIVersion != stripe.APIVersion {
			logg.Warn(logg.WithField(ctx, "api_version", event.APIVersion), "stripe event api version differs from client")
		}

		ack, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		logg.Info(logg.WithFields(ctx, map[string]any{
			"outcome":   ack.Outcome,
			"duplicate": ack.Duplicate,
		}), "stripe webhook acknowledged")
		responses.WriteSuccess(w, ack)
	}
}

// verify tries each secret in turn. Only a signature mismatch moves on to the
// next secret; a stale timestamp or malformed header fails immediately.
func verify(payload []byte, header string, secrets []string, tolerance time.Duration) (stripe.Event, error) {
	err := webhook.ErrNoValidSignature
	for _, secret := range secrets {
		var event stripe.Event
		event, err = webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
			Tolerance:                tolerance,
			IgnoreAPIVersionMismatch: true,
		})
		if err == nil {
			return event, nil
		}
		if !errors.Is(err, webhook.ErrNoValidSignature) {
			return stripe.Event{}, err
		}
	}
	return stripe.Event{}, err
}
