package stripewebhook

import (
	"context"

	"github.com/stripe/stripe-go/v84"

	paymentwebhook "github.com/angelmondragon/commerce-core/internal/webhooks/payments"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
)

const providerName = "stripe"

type ServiceParams struct {
	Reconciler paymentwebhook.Reconciler
}

// Service turns verified Stripe events into provider-neutral deliveries.
type Service struct {
	reconciler paymentwebhook.Reconciler
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook reconciler required")
	}
	return &Service{reconciler: params.Reconciler}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (paymentwebhook.Ack, error) {
	delivery, err := Translate(event)
	if err != nil {
		return paymentwebhook.Ack{}, err
	}
	return s.reconciler.Handle(ctx, delivery)
}

// Translate maps the Stripe event onto a delivery. Types without a mapping
// keep their Stripe name so the reconciler records and acknowledges them.
func Translate(event *stripe.Event) (paymentwebhook.Delivery, error) {
	if event == nil || event.Data == nil {
		return paymentwebhook.Delivery{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	if event.ID == "" {
		return paymentwebhook.Delivery{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe event id required")
	}
	delivery := paymentwebhook.Delivery{
		Provider:        providerName,
		ExternalEventID: event.ID,
		Type:            string(event.Type),
		Payload:         event.Data.Raw,
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		delivery.Type = string(enums.WebhookEventSucceeded)
		delivery.PaymentIntentRef = objectString(event, "id")
	case stripe.EventTypePaymentIntentPaymentFailed:
		delivery.Type = string(enums.WebhookEventFailed)
		delivery.PaymentIntentRef = objectString(event, "id")
	case stripe.EventTypePaymentIntentCanceled:
		delivery.Type = string(enums.WebhookEventCanceled)
		delivery.PaymentIntentRef = objectString(event, "id")
	case stripe.EventTypeChargeRefunded:
		delivery.Type = string(enums.WebhookEventRefunded)
		delivery.PaymentIntentRef = objectString(event, "payment_intent")
	default:
		delivery.PaymentIntentRef = objectString(event, "payment_intent")
	}
	return delivery, nil
}

func objectString(event *stripe.Event, key string) string {
	if event.Data.Object == nil {
		return ""
	}
	return event.GetObjectValue(key)
}
