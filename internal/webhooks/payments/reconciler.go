// Package paymentwebhook applies provider payment events to orders exactly once
// under at-least-once delivery.
package paymentwebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/commerce-core/internal/orders"
	dbpkg "github.com/angelmondragon/commerce-core/pkg/db"
	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"github.com/angelmondragon/commerce-core/pkg/logger"
	"github.com/angelmondragon/commerce-core/pkg/metrics"
)

const (
	consumerName       = "payment-webhooks"
	maxConflictRetries = 3
	defaultProvider    = "stripe"
)

// Delivery is an authenticated, provider-neutral payment event.
type Delivery struct {
	Provider         string
	ExternalEventID  string
	Type             string
	PaymentIntentRef string
	Payload          json.RawMessage
}

// Ack is returned for every delivery the provider should stop retrying.
type Ack struct {
	EventID   uuid.UUID            `json:"event_id"`
	OrderID   *uuid.UUID           `json:"order_id,omitempty"`
	Outcome   enums.WebhookOutcome `json:"outcome"`
	Duplicate bool                 `json:"duplicate"`
}

// Reconciler is the single entry point for payment webhooks.
type Reconciler interface {
	Handle(ctx context.Context, delivery Delivery) (Ack, error)
}

// ProcessedCache is the optional fast path in front of the database dedup.
type ProcessedCache interface {
	WasProcessed(ctx context.Context, consumer, id string) (bool, error)
	MarkProcessed(ctx context.Context, consumer, id string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo    Repository
	Orders  orders.Service
	Tx      txRunner
	Cache   ProcessedCache
	Logger  *logger.Logger
	Metrics *metrics.CommerceMetrics
	Clock   func() time.Time
}

type service struct {
	repo    Repository
	orders  orders.Service
	tx      txRunner
	cache   ProcessedCache
	logg    *logger.Logger
	metrics *metrics.CommerceMetrics
	now     func() time.Time
}

var errDuplicate = errors.New("webhook event already recorded")

func NewService(params ServiceParams) (Reconciler, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook repository required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order service required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:    params.Repo,
		orders:  params.Orders,
		tx:      params.Tx,
		cache:   params.Cache,
		logg:    logg,
		metrics: params.Metrics,
		now:     clock,
	}, nil
}

// Handle records the delivery and applies its transition in one transaction.
// Replays, unknown types and transitions the order has already moved past are
// acknowledged. Anything that prevents durable recording is returned so the
// provider retries.
func (s *service) Handle(ctx context.Context, delivery Delivery) (Ack, error) {
	delivery.ExternalEventID = strings.TrimSpace(delivery.ExternalEventID)
	delivery.PaymentIntentRef = strings.TrimSpace(delivery.PaymentIntentRef)
	if delivery.ExternalEventID == "" {
		return Ack{}, pkgerrors.New(pkgerrors.CodeValidation, "external event id required")
	}
	if delivery.Provider == "" {
		delivery.Provider = defaultProvider
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"external_event_id":  delivery.ExternalEventID,
		"event_type":         delivery.Type,
		"payment_intent_ref": delivery.PaymentIntentRef,
	})

	if s.seen(logCtx, delivery.ExternalEventID) {
		s.metrics.WebhookEvent(delivery.Type, string(enums.WebhookOutcomeDuplicate))
		s.logg.Debug(logCtx, "webhook replay acknowledged from cache")
		return Ack{Outcome: enums.WebhookOutcomeDuplicate, Duplicate: true}, nil
	}

	var (
		ack Ack
		err error
	)
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		ack, err = s.handleOnce(logCtx, delivery)
		if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
			break
		}
		s.logg.Warn(s.logg.WithField(logCtx, "attempt", attempt), "webhook transition raced; retrying")
	}
	if errors.Is(err, errDuplicate) {
		ack, err = Ack{Outcome: enums.WebhookOutcomeDuplicate, Duplicate: true}, nil
	}
	if err != nil {
		s.metrics.WebhookEvent(delivery.Type, "error")
		s.logg.Error(logCtx, "webhook handling failed", err)
		return Ack{}, err
	}

	s.remember(logCtx, delivery.ExternalEventID)
	s.metrics.WebhookEvent(delivery.Type, string(ack.Outcome))
	if ack.OrderID != nil {
		logCtx = s.logg.WithOrderID(logCtx, ack.OrderID.String())
	}
	s.logg.Info(s.logg.WithField(logCtx, "outcome", ack.Outcome), "webhook acknowledged")
	return ack, nil
}

func (s *service) handleOnce(ctx context.Context, delivery Delivery) (Ack, error) {
	var ack Ack
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := s.record(ctx, repo, delivery)
		if err != nil {
			return err
		}
		ack.EventID = row.ID
		if row.Processed {
			ack.Duplicate = true
			ack.Outcome = enums.WebhookOutcomeDuplicate
			ack.OrderID = row.OrderID
			return nil
		}

		outcome, orderID, err := s.apply(ctx, tx, delivery)
		if err != nil {
			return err
		}
		ack.Outcome = outcome
		ack.OrderID = orderID
		if err := repo.MarkProcessed(ctx, row.ID, orderID, outcome, s.now().UTC()); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark webhook processed")
		}
		return nil
	})
	return ack, err
}

// record returns the stored row for the delivery, inserting it when new. A
// concurrent insert of the same id surfaces as errDuplicate once the losing
// transaction has rolled back.
func (s *service) record(ctx context.Context, repo Repository, delivery Delivery) (*models.PaymentWebhookEvent, error) {
	existing, err := repo.FindByExternalID(ctx, delivery.ExternalEventID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup webhook event")
	}
	row := &models.PaymentWebhookEvent{
		Provider:         delivery.Provider,
		ExternalEventID:  delivery.ExternalEventID,
		Type:             delivery.Type,
		PaymentIntentRef: delivery.PaymentIntentRef,
		Payload:          delivery.Payload,
		ReceivedAt:       s.now().UTC(),
	}
	if err := repo.Create(ctx, row); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, errDuplicate
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
	}
	return row, nil
}

func (s *service) apply(ctx context.Context, tx *gorm.DB, delivery Delivery) (enums.WebhookOutcome, *uuid.UUID, error) {
	eventType, err := enums.ParseWebhookEventType(delivery.Type)
	if err != nil {
		s.logg.Warn(ctx, "unknown webhook event type acknowledged")
		return enums.WebhookOutcomeIgnored, nil, nil
	}
	kind, ok := eventKind(eventType)
	if !ok {
		s.logg.Info(ctx, "webhook event type carries no order transition")
		return enums.WebhookOutcomeIgnored, nil, nil
	}
	if delivery.PaymentIntentRef == "" {
		return "", nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent ref required").
			WithDetails(map[string]any{"external_event_id": delivery.ExternalEventID})
	}

	order, err := s.orders.FindByPaymentIntent(ctx, tx, delivery.PaymentIntentRef)
	if err != nil {
		return "", nil, err
	}
	orderID := order.ID
	result, err := s.orders.Apply(ctx, tx, order, orders.Event{Kind: kind}, orders.SystemActor)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
			s.logg.Info(s.logg.WithField(ctx, "status", order.Status), "webhook transition already applied or superseded")
			return enums.WebhookOutcomeNoop, &orderID, nil
		}
		return "", nil, err
	}
	if result.Outcome == orders.OutcomeStockConflict {
		return enums.WebhookOutcomeStockConflict, &orderID, nil
	}
	return enums.WebhookOutcomeApplied, &orderID, nil
}

// eventKind maps provider events onto order events. Refund notifications are
// informational: refunds are driven by the orchestrator, not the provider.
func eventKind(t enums.WebhookEventType) (orders.EventKind, bool) {
	switch t {
	case enums.WebhookEventSucceeded:
		return orders.EventPaymentCaptured, true
	case enums.WebhookEventFailed:
		return orders.EventPaymentFailed, true
	case enums.WebhookEventCanceled:
		return orders.EventCancel, true
	default:
		return "", false
	}
}

func (s *service) seen(ctx context.Context, externalID string) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.WasProcessed(ctx, consumerName, externalID)
	if err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("webhook cache lookup failed: %v", err))
		return false
	}
	return ok
}

func (s *service) remember(ctx context.Context, externalID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.MarkProcessed(ctx, consumerName, externalID); err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("webhook cache mark failed: %v", err))
	}
}
