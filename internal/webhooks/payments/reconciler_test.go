package paymentwebhook_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/commerce-core/internal/commercetest"
	"github.com/angelmondragon/commerce-core/internal/orders"
	paymentwebhook "github.com/angelmondragon/commerce-core/internal/webhooks/payments"
	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
)

type memoryCache struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (c *memoryCache) WasProcessed(_ context.Context, consumer, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[consumer+":"+id], nil
}

func (c *memoryCache) MarkProcessed(_ context.Context, consumer, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen == nil {
		c.seen = map[string]bool{}
	}
	c.seen[consumer+":"+id] = true
	return nil
}

func newReconciler(t *testing.T, s *commercetest.Stack, cache paymentwebhook.ProcessedCache) paymentwebhook.Reconciler {
	t.Helper()
	rec, err := paymentwebhook.NewService(paymentwebhook.ServiceParams{
		Repo:   paymentwebhook.NewRepository(s.DB),
		Orders: s.Orders,
		Tx:     s.Client,
		Cache:  cache,
	})
	require.NoError(t, err)
	return rec
}

func succeeded(eventID string, order *models.Order) paymentwebhook.Delivery {
	return paymentwebhook.Delivery{
		ExternalEventID:  eventID,
		Type:             string(enums.WebhookEventSucceeded),
		PaymentIntentRef: *order.PaymentIntentRef,
		Payload:          []byte(`{"id":"` + eventID + `"}`),
	}
}

func TestRepeatedDeliveryCommitsStockOnce(t *testing.T) {
	for _, deliveries := range []int{1, 2, 100} {
		t.Run(fmt.Sprintf("%d deliveries", deliveries), func(t *testing.T) {
			s := commercetest.New(t)
			rec := newReconciler(t, s, nil)
			s.Stock(t, "sku-1", 10)
			order := s.PlaceOrder(t, orders.ItemInput{ProductRef: "sku-1", Quantity: 3, UnitPriceCents: 500})

			var wg sync.WaitGroup
			acks := make([]paymentwebhook.Ack, deliveries)
			errs := make([]error, deliveries)
			for i := 0; i < deliveries; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					acks[i], errs[i] = rec.Handle(context.Background(), succeeded("evt_1", order))
				}(i)
			}
			wg.Wait()

			applied := 0
			for i := range errs {
				require.NoError(t, errs[i])
				if acks[i].Outcome == enums.WebhookOutcomeApplied {
					applied++
				} else {
					require.True(t, acks[i].Duplicate)
				}
			}
			require.Equal(t, 1, applied)

			final := s.Order(t, order.ID)
			require.Equal(t, enums.OrderStatusConfirmed, final.Status)
			require.Equal(t, enums.PaymentStatusPaid, final.PaymentStatus)
			require.EqualValues(t, 7, s.Quantity(t, "sku-1"))
			require.EqualValues(t, 1, s.Count(t, &models.PaymentWebhookEvent{}, ""))
			require.EqualValues(t, 1, s.Count(t, &models.StockMovement{}, "reason = ?", enums.StockMovementOrderCommit))
		})
	}
}

func TestDistinctEventForAppliedCaptureIsNoop(t *testing.T) {
	s := commercetest.New(t)
	rec := newReconciler(t, s, nil)
	s.Stock(t, "sku-1", 10)
	order := s.PlaceOrder(t, orders.ItemInput{ProductRef: "sku-1", Quantity: 2, UnitPriceCents: 500})

	first, err := rec.Handle(context.Background(), succeeded("evt_a", order))
	require.NoError(t, err)
	require.Equal(t, enums.WebhookOutcomeApplied, first.Outcome)
	require.NotNil(t, first.OrderID)
	require.Equal(t, order.ID, *first.OrderID)

	second, err := rec.Handle(context.Background(), succeeded("evt_b", order))
	require.NoError(t, err)
	require.Equal(t, enums.WebhookOutcomeNoop, second.Outcome)
	require.False(t, second.Duplicate)
	require.EqualValues(t, 8, s.Quantity(t, "sku-1"))

	var row models.PaymentWebhookEvent
	require.NoError(t, s.DB.Where("external_event_id = ?", "evt_b").First(&row).Error)
	require.True(t, row.Processed)
	require.NotNil(t, row.Outcome)
	require.Equal(t, string(enums.WebhookOutcomeNoop), *row.Outcome)
}

func TestFailedAndCanceledEvents(t *testing.T) {
	s := commercetest.New(t)
	rec := newReconciler(t, s, nil)
	ctx := context.Background()

	failing := s.PlaceOrder(t, orders.ItemInput{ProductRef: "sku-1", Quantity: 1, UnitPriceCents: 500})
	ack, err := rec.Handle(ctx, paymentwebhook.Delivery{
		ExternalEventID: "evt_fail", Type: "failed", PaymentIntentRef: *failing.PaymentIntentRef,
	})
	require.NoError(t, err)
	require.Equal(t, enums.WebhookOutcomeApplied, ack.Outcome)
	require.Equal(t, enums.OrderStatusPaymentFailed, s.Order(t, failing.ID).Status)

	canceled := s.PlaceOrder(t, orders.ItemInput{ProductRef: "sku-1", Quantity: 1, UnitPriceCents: 500})
	ack, err = rec.Handle(ctx, paymentwebhook.Delivery{
		ExternalEventID: "evt_cancel", Type: "canceled", PaymentIntentRef: *canceled.PaymentIntentRef,
	})
	require.NoError(t, err)
	require.Equal(t, enums.WebhookOutcomeApplied, ack.Outcome)
	require.Equal(t, enums.OrderStatusCancelled, s.Order(t, canceled.ID).Status)
}

func TestUnknownAndRefundTypesAreAcknowledged(t *testing.T) {
	s := commercetest.New(t)
	rec := newReconciler(t, s, nil)
	ctx := context.Background()

	for _, typ := range []string{"refunded", "payment_intent.requires_action"} {
		ack, err := rec.Handle(ctx, paymentwebhook.Delivery{ExternalEventID: "evt_" + typ, Type: typ, PaymentIntentRef: "pi_unknown"})
		require.NoError(t, err, typ)
		require.Equal(t, enums.WebhookOutcomeIgnored, ack.Outcome, typ)
		require.Nil(t, ack.OrderID)
	}
	require.EqualValues(t, 2, s.Count(t, &models.PaymentWebhookEvent{}, "processed = ?", true))
}

func TestUnknownPaymentIntentIsNotAcknowledged(t *testing.T) {
	s := commercetest.New(t)
	rec := newReconciler(t, s, nil)

	_, err := rec.Handle(context.Background(), paymentwebhook.Delivery{
		ExternalEventID: "evt_orphan", Type: "succeeded", PaymentIntentRef: "pi_missing",
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound), "got %v", err)
	require.Zero(t, s.Count(t, &models.PaymentWebhookEvent{}, ""))
}

func TestUnavailableDatabaseIsNotAcknowledged(t *testing.T) {
	s := commercetest.New(t)
	rec := newReconciler(t, s, nil)
	s.Stock(t, "sku-1", 5)
	order := s.PlaceOrder(t, orders.ItemInput{ProductRef: "sku-1", Quantity: 1, UnitPriceCents: 500})

	sqlDB, err := s.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	ack, err := rec.Handle(context.Background(), succeeded("evt_down", order))
	require.Error(t, err)
	require.Zero(t, ack)
}

func TestStockConflictOutcomeIsAcknowledged(t *testing.T) {
	s := commercetest.New(t)
	rec := newReconciler(t, s, nil)
	s.Stock(t, "sku-1", 1)
	order := s.PlaceOrder(t, orders.ItemInput{ProductRef: "sku-1", Quantity: 2, UnitPriceCents: 500})

	ack, err := rec.Handle(context.Background(), succeeded("evt_short", order))
	require.NoError(t, err)
	require.Equal(t, enums.WebhookOutcomeStockConflict, ack.Outcome)

	final := s.Order(t, order.ID)
	require.Equal(t, enums.OrderStatusStockConflict, final.Status)
	require.EqualValues(t, 1, s.Quantity(t, "sku-1"))
	require.EqualValues(t, 1, s.Count(t, &models.Refund{}, "order_id = ? AND status = ?", order.ID, enums.RefundStatusPending))
}

func TestCacheShortCircuitsAfterCommit(t *testing.T) {
	s := commercetest.New(t)
	cache := &memoryCache{}
	rec := newReconciler(t, s, cache)
	s.Stock(t, "sku-1", 5)
	order := s.PlaceOrder(t, orders.ItemInput{ProductRef: "sku-1", Quantity: 1, UnitPriceCents: 500})

	_, err := rec.Handle(context.Background(), succeeded("evt_cached", order))
	require.NoError(t, err)
	seen, err := cache.WasProcessed(context.Background(), "payment-webhooks", "evt_cached")
	require.NoError(t, err)
	require.True(t, seen)

	ack, err := rec.Handle(context.Background(), succeeded("evt_cached", order))
	require.NoError(t, err)
	require.True(t, ack.Duplicate)
	require.Equal(t, enums.WebhookOutcomeDuplicate, ack.Outcome)
}

func TestDeliveryValidation(t *testing.T) {
	s := commercetest.New(t)
	rec := newReconciler(t, s, nil)
	_, err := rec.Handle(context.Background(), paymentwebhook.Delivery{Type: "succeeded", PaymentIntentRef: "pi_1"})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
