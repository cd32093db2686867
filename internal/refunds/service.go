package refunds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/angelmondragon/commerce-core/internal/orders"
	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"github.com/angelmondragon/commerce-core/pkg/logger"
	"github.com/angelmondragon/commerce-core/pkg/metrics"
	"github.com/angelmondragon/commerce-core/pkg/outbox"
	"github.com/angelmondragon/commerce-core/pkg/outbox/payloads"
	"github.com/angelmondragon/commerce-core/pkg/stripe"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// Service orchestrates refunds. The cumulative amount of pending and
// completed refunds on an order never exceeds what was captured.
type Service interface {
	orders.RefundScheduler
	Create(ctx context.Context, input CreateInput) (*models.Refund, error)
	Process(ctx context.Context, id uuid.UUID) (*models.Refund, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Refund, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor) ([]models.Refund, error)
	ProcessPending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
	Compensate(ctx context.Context, limit int) (int, error)
}

// CreateInput is an operator or seller initiated refund.
type CreateInput struct {
	OrderID         uuid.UUID
	AmountCents     int64
	Method          enums.RefundMethod
	Reason          enums.RefundReason
	ReturnRequestID *uuid.UUID
	Actor           orders.Actor
}

// Gateway is the provider refund primitive. RefundStatus follows up on a
// refund the provider accepted without settling.
type Gateway interface {
	RefundPayment(ctx context.Context, req stripe.RefundRequest) (stripe.RefundResult, error)
	RefundStatus(ctx context.Context, providerRefundRef string) (stripe.RefundResult, error)
}

// StoreCredit credits a customer's internal balance.
type StoreCredit interface {
	Credit(ctx context.Context, tx *gorm.DB, customerRef string, refundID uuid.UUID, amountCents int64) error
}

// ReturnFinalizer completes return requests settled by a cancellation refund.
type ReturnFinalizer interface {
	FinalizeForRefund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, returnRequestID *uuid.UUID, refundID uuid.UUID) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo        Repository
	Orders      orders.Repository
	Tx          txRunner
	Gateway     Gateway
	StoreCredit StoreCredit
	Returns     ReturnFinalizer
	Outbox      outbox.Emitter
	Logger      *logger.Logger
	Metrics     *metrics.CommerceMetrics
	Clock       func() time.Time
}

type service struct {
	repo        Repository
	orders      orders.Repository
	tx          txRunner
	gateway     Gateway
	storeCredit StoreCredit
	returns     ReturnFinalizer
	outbox      outbox.Emitter
	logg        *logger.Logger
	metrics     *metrics.CommerceMetrics
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("refund repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.StoreCredit == nil:
		return nil, fmt.Errorf("store credit service required")
	case params.Returns == nil:
		return nil, fmt.Errorf("return request service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
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
		repo:        params.Repo,
		orders:      params.Orders,
		tx:          params.Tx,
		gateway:     params.Gateway,
		storeCredit: params.StoreCredit,
		returns:     params.Returns,
		outbox:      params.Outbox,
		logg:        logg,
		metrics:     params.Metrics,
		now:         clock,
	}, nil
}

// ScheduleRefund reserves the amount and inserts a PENDING refund inside tx.
// An over-cap request is rejected before anything is written.
func (s *service) ScheduleRefund(ctx context.Context, tx *gorm.DB, req orders.RefundRequest) (*models.Refund, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	order := req.Order
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if !req.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid refund method %q", req.Method))
	}
	if !req.Reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid refund reason %q", req.Reason))
	}
	if !order.PaymentStatus.IsCaptured() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order payment was never captured").
			WithDetails(map[string]any{"order_id": order.ID.String(), "payment_status": order.PaymentStatus})
	}

	repo := s.repo.WithTx(tx)
	ok, err := repo.Reserve(ctx, order.ID, req.AmountCents)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve refund amount")
	}
	if !ok {
		s.metrics.Refund(string(req.Method), "over_refund")
		return nil, pkgerrors.New(pkgerrors.CodeOverRefund, "refund exceeds captured amount").WithDetails(map[string]any{
			"order_id":       order.ID.String(),
			"captured_cents": order.CapturedCents,
			"reserved_cents": order.RefundReservedCents,
			"amount_cents":   req.AmountCents,
		})
	}

	refund := &models.Refund{
		OrderID:     order.ID,
		AmountCents: req.AmountCents,
		Method:      req.Method,
		Reason:      req.Reason,
		Status:      enums.RefundStatusPending,
		ActorRef:    req.Actor.Ref,
		ActorRole:   req.Actor.Role,
	}
	if err := repo.Create(ctx, refund); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund")
	}
	if err := s.emit(ctx, tx, enums.EventRefundScheduled, refund); err != nil {
		return nil, err
	}
	s.metrics.Refund(string(refund.Method), string(refund.Status))
	s.logRefund(ctx, refund, "refund scheduled")
	return refund, nil
}

// Create schedules and immediately processes a refund. A gateway timeout
// leaves it PENDING for the worker; a definitive rejection returns the FAILED
// refund together with the gateway error.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Refund, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	reason := input.Reason
	if reason == "" {
		reason = enums.RefundReasonCustomerRequest
	}
	var refund *models.Refund
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.loadOrder(ctx, s.orders.WithTx(tx), input.OrderID)
		if err != nil {
			return err
		}
		if err := authorize(order, input.Actor, true); err != nil {
			return err
		}
		refund, err = s.ScheduleRefund(ctx, tx, orders.RefundRequest{
			Order:       order,
			AmountCents: input.AmountCents,
			Method:      input.Method,
			Reason:      reason,
			Actor:       input.Actor,
		})
		if err != nil {
			return err
		}
		if input.ReturnRequestID != nil {
			refund.ReturnRequestID = input.ReturnRequestID
			if _, err := s.repo.WithTx(tx).UpdateIfPending(ctx, refund.ID, map[string]any{"return_request_id": *input.ReturnRequestID}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link return request")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	processed, err := s.Process(ctx, refund.ID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeGatewayTimeout) {
			return processed, nil
		}
		return processed, err
	}
	return processed, nil
}

// Process executes a PENDING refund. It is safe to call repeatedly: the
// provider call reuses the refund id as idempotency key and only one caller
// can move the row out of PENDING.
func (s *service) Process(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	refund, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if refund.Status != enums.RefundStatusPending {
		return refund, nil
	}
	if err := s.repo.IncrementAttempts(ctx, refund.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund attempt")
	}
	order, err := s.loadOrder(ctx, s.orders, refund.OrderID)
	if err != nil {
		return nil, err
	}

	switch refund.Method {
	case enums.RefundMethodStoreCredit:
		return s.complete(ctx, refund, nil)
	case enums.RefundMethodOriginalPayment:
	default:
		return s.fail(ctx, refund, fmt.Sprintf("unsupported refund method %q", refund.Method), nil)
	}

	if order.PaymentIntentRef == nil {
		return s.fail(ctx, refund, "order has no payment reference", nil)
	}
	var result stripe.RefundResult
	if refund.ProviderRefundRef != nil {
		result, err = s.gateway.RefundStatus(ctx, *refund.ProviderRefundRef)
	} else {
		result, err = s.gateway.RefundPayment(ctx, stripe.RefundRequest{
			PaymentRef:     *order.PaymentIntentRef,
			AmountCents:    refund.AmountCents,
			IdempotencyKey: "refund:" + refund.ID.String(),
			Metadata: map[string]string{
				"order_id":  order.ID.String(),
				"refund_id": refund.ID.String(),
				"currency":  enums.Currency(order.Currency).GatewayCode(),
			},
		})
	}
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeGatewayTimeout) {
			logCtx := s.logg.WithField(ctx, "refund_id", refund.ID.String())
			s.logg.Warn(logCtx, "refund gateway call timed out; left pending")
			s.metrics.Refund(string(refund.Method), "retry")
			return refund, err
		}
		return s.fail(ctx, refund, err.Error(), err)
	}
	if !result.Settled() {
		return s.awaitProvider(ctx, refund, result)
	}
	ref := result.ProviderRefundRef
	return s.complete(ctx, refund, &ref)
}

// awaitProvider keeps an accepted but unsettled refund PENDING with its
// provider reference, so later passes poll the provider instead of creating a
// second refund.
func (s *service) awaitProvider(ctx context.Context, refund *models.Refund, result stripe.RefundResult) (*models.Refund, error) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"refund_id":           refund.ID.String(),
		"provider_refund_ref": result.ProviderRefundRef,
		"provider_status":     result.Status,
	})
	if refund.ProviderRefundRef == nil {
		if _, err := s.repo.UpdateIfPending(ctx, refund.ID, map[string]any{"provider_refund_ref": result.ProviderRefundRef}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record provider refund")
		}
	}
	current, err := s.repo.FindByID(ctx, refund.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload refund")
	}
	s.metrics.Refund(string(refund.Method), "awaiting_provider")
	s.logg.Info(logCtx, "refund awaiting provider settlement")
	return current, nil
}

func (s *service) complete(ctx context.Context, refund *models.Refund, providerRef *string) (*models.Refund, error) {
	now := s.now().UTC()
	var done *models.Refund
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		fields := map[string]any{
			"status":       enums.RefundStatusCompleted,
			"processed_at": now,
		}
		if providerRef != nil {
			fields["provider_refund_ref"] = *providerRef
		}
		flipped, err := repo.UpdateIfPending(ctx, refund.ID, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete refund")
		}
		current, err := repo.FindByID(ctx, refund.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload refund")
		}
		done = current
		if !flipped {
			return nil
		}

		orderRepo := s.orders.WithTx(tx)
		order, err := s.loadOrder(ctx, orderRepo, refund.OrderID)
		if err != nil {
			return err
		}
		if refund.Method == enums.RefundMethodStoreCredit {
			if err := s.storeCredit.Credit(ctx, tx, order.CustomerRef, refund.ID, refund.AmountCents); err != nil {
				return err
			}
		}
		if _, err := orders.Next(*order, orders.Event{Kind: orders.EventRefundApplied, AmountCents: refund.AmountCents}); err != nil {
			return err
		}
		applied, err := orderRepo.ApplyRefund(ctx, order.ID, refund.AmountCents)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply refund to order")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeOverRefund, "refund exceeds captured amount").
				WithDetails(map[string]any{"order_id": order.ID.String(), "refund_id": refund.ID.String()})
		}
		if refund.Reason == enums.RefundReasonOrderCancellation {
			if _, err := s.returns.FinalizeForRefund(ctx, tx, order.ID, refund.ReturnRequestID, refund.ID); err != nil {
				return err
			}
		}
		return s.emit(ctx, tx, enums.EventRefundCompleted, current)
	})
	if err != nil {
		return nil, err
	}
	if done.Status == enums.RefundStatusCompleted {
		s.metrics.Refund(string(done.Method), string(done.Status))
		s.logRefund(ctx, done, "refund completed")
	}
	return done, nil
}

// fail marks the refund FAILED and frees its reservation. Failed rows are never
// retried; a new refund must be created.
func (s *service) fail(ctx context.Context, refund *models.Refund, reason string, cause error) (*models.Refund, error) {
	now := s.now().UTC()
	var failed *models.Refund
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		flipped, err := repo.UpdateIfPending(ctx, refund.ID, map[string]any{
			"status":         enums.RefundStatusFailed,
			"failure_reason": truncate(reason, 500),
			"processed_at":   now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail refund")
		}
		current, err := repo.FindByID(ctx, refund.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload refund")
		}
		failed = current
		if !flipped {
			return nil
		}
		if err := repo.Release(ctx, refund.OrderID, refund.AmountCents); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release refund reservation")
		}
		return s.emit(ctx, tx, enums.EventRefundFailed, current)
	})
	if err != nil {
		return nil, err
	}
	if failed.Status != enums.RefundStatusFailed {
		return failed, nil
	}
	s.metrics.Refund(string(failed.Method), string(failed.Status))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"refund_id": failed.ID.String(),
		"order_id":  failed.OrderID.String(),
	})
	s.logg.Error(logCtx, "refund failed", errors.New(reason))
	gatewayErr := pkgerrors.New(pkgerrors.CodeGatewayError, "refund failed").
		WithDetails(map[string]any{"refund_id": failed.ID.String(), "reason": reason})
	if cause != nil {
		gatewayErr = pkgerrors.Wrap(pkgerrors.CodeGatewayError, cause, "refund failed").
			WithDetails(map[string]any{"refund_id": failed.ID.String()})
	}
	return failed, gatewayErr
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id required")
	}
	refund, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "refund not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund")
	}
	return refund, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID, actor orders.Actor) ([]models.Refund, error) {
	order, err := s.loadOrder(ctx, s.orders, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(order, actor, false); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list refunds")
	}
	return rows, nil
}

// ProcessPending retries PENDING refunds older than the grace period. Errors
// are collected so one stuck refund does not block the rest of the batch.
func (s *service) ProcessPending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.repo.ListPending(ctx, s.now().UTC().Add(-olderThan), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending refunds")
	}
	var errs error
	processed := 0
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return processed, multierr.Append(errs, err)
		}
		refund, err := s.Process(ctx, row.ID)
		if err != nil && !pkgerrors.HasCode(err, pkgerrors.CodeGatewayError) {
			errs = multierr.Append(errs, fmt.Errorf("refund %s: %w", row.ID, err))
			continue
		}
		if refund != nil && refund.Status != enums.RefundStatusPending {
			processed++
		}
	}
	return processed, errs
}

// Compensate schedules a fresh full refund for stock-conflicted or cancelled
// orders whose captured funds are not yet claimed, for example after an
// earlier compensation refund FAILED.
func (s *service) Compensate(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := s.repo.ListCompensationCandidates(ctx, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list compensation candidates")
	}
	var errs error
	scheduled := 0
	for _, id := range ids {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			order, err := s.loadOrder(ctx, s.orders.WithTx(tx), id)
			if err != nil {
				return err
			}
			amount := order.RefundableCents()
			if amount <= 0 {
				return nil
			}
			reason := enums.RefundReasonOrderCancellation
			if order.Status == enums.OrderStatusStockConflict {
				reason = enums.RefundReasonStockConflict
			}
			_, err = s.ScheduleRefund(ctx, tx, orders.RefundRequest{
				Order:       order,
				AmountCents: amount,
				Method:      enums.RefundMethodOriginalPayment,
				Reason:      reason,
				Actor:       orders.SystemActor,
			})
			if err == nil {
				scheduled++
			}
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", id, err))
		}
	}
	return scheduled, errs
}

func (s *service) loadOrder(ctx context.Context, repo orders.Repository, id uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, refund *models.Refund) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateRefund,
		AggregateID:   refund.ID,
		Actor:         outbox.NewActorRef(refund.ActorRef, refund.ActorRole),
		Data: payloads.RefundEvent{
			RefundID:          refund.ID,
			OrderID:           refund.OrderID,
			AmountCents:       refund.AmountCents,
			Method:            refund.Method,
			Reason:            refund.Reason,
			Status:            refund.Status,
			ProviderRefundRef: refund.ProviderRefundRef,
			FailureReason:     refund.FailureReason,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit refund event")
	}
	return nil
}

func (s *service) logRefund(ctx context.Context, refund *models.Refund, msg string) {
	logCtx := s.logg.WithOrderID(ctx, refund.OrderID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"refund_id":    refund.ID.String(),
		"amount_cents": refund.AmountCents,
		"method":       refund.Method,
		"reason":       refund.Reason,
		"status":       refund.Status,
	})
	s.logg.Info(logCtx, msg)
}

// authorize limits refunds to staff and the order's seller. Customers may read
// refunds on their own orders.
func authorize(order *models.Order, actor orders.Actor, write bool) error {
	if actor.Role.IsStaff() {
		return nil
	}
	if strings.TrimSpace(actor.Ref) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required")
	}
	switch actor.Role {
	case enums.ActorRoleSeller:
		if order.SellerRef == actor.Ref {
			return nil
		}
	case enums.ActorRoleCustomer:
		if !write && order.CustomerRef == actor.Ref {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order is outside the actor's scope")
}

// truncate caps value at max bytes without splitting a rune.
func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	for max > 0 && !utf8.RuneStart(value[max]) {
		max--
	}
	return value[:max]
}
