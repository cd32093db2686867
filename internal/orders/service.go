package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/commerce-core/internal/ledger"
	dbpkg "github.com/angelmondragon/commerce-core/pkg/db"
	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"github.com/angelmondragon/commerce-core/pkg/logger"
	"github.com/angelmondragon/commerce-core/pkg/metrics"
	"github.com/angelmondragon/commerce-core/pkg/money"
	"github.com/angelmondragon/commerce-core/pkg/outbox"
	"github.com/angelmondragon/commerce-core/pkg/outbox/payloads"
	"github.com/angelmondragon/commerce-core/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const stockCommitSavepoint = "order_stock_commit"

// Service owns the order lifecycle. Every status or payment status write goes
// through Transition or Apply.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) (pagination.Page[models.Order], error)
	AttachPaymentIntent(ctx context.Context, id uuid.UUID, paymentIntentRef string, actor Actor) (*models.Order, error)
	RequestCapture(ctx context.Context, id uuid.UUID, actor Actor) error
	Transition(ctx context.Context, id uuid.UUID, event Event, actor Actor) (*models.Order, error)
	Apply(ctx context.Context, tx *gorm.DB, order *models.Order, event Event, actor Actor) (*Result, error)
	FindByPaymentIntent(ctx context.Context, tx *gorm.DB, paymentIntentRef string) (*models.Order, error)
}

// Outcome classifies what Apply did.
type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeStockConflict Outcome = "stock_conflict"
)

// Result is the post-transition order and any refund it scheduled.
type Result struct {
	Order    *models.Order
	Outcome  Outcome
	Refund   *models.Refund
	Conflict *ConflictDetail
}

// ConflictDetail names the line that could not be committed at capture.
type ConflictDetail struct {
	ProductRef   string
	WarehouseRef string
}

// CreateInput is checkout initiation.
type CreateInput struct {
	CustomerRef string
	SellerRef   string
	Currency    string
	Items       []ItemInput
	// TotalCents, when set, must match the sum of the item lines.
	TotalCents *int64
}

type ItemInput struct {
	ProductRef     string
	Quantity       int64
	UnitPriceCents int64
}

type ServiceParams struct {
	Repo       Repository
	Tx         txRunner
	Ledger     ledger.Service
	Warehouses WarehouseResolver
	Refunds    RefundScheduler
	Gateway    PaymentCapturer
	Outbox     outbox.Emitter
	Logger     *logger.Logger
	Metrics    *metrics.CommerceMetrics
	Clock      Clock
}

type service struct {
	repo       Repository
	tx         txRunner
	ledger     ledger.Service
	warehouses WarehouseResolver
	refunds    RefundScheduler
	gateway    PaymentCapturer
	outbox     outbox.Emitter
	logg       *logger.Logger
	metrics    *metrics.CommerceMetrics
	now        Clock
}

// NewService builds the order service. Gateway may be nil when captures are
// driven entirely by the provider.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Warehouses == nil {
		return nil, fmt.Errorf("warehouse resolver required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refund scheduler required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
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
		repo:       params.Repo,
		tx:         params.Tx,
		ledger:     params.Ledger,
		warehouses: params.Warehouses,
		refunds:    params.Refunds,
		gateway:    params.Gateway,
		outbox:     params.Outbox,
		logg:       logg,
		metrics:    params.Metrics,
		now:        clock,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	order, err := buildOrder(input)
	if err != nil {
		return nil, err
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		return s.emit(ctx, tx, enums.EventOrderCreated, order, Actor{Ref: input.CustomerRef, Role: enums.ActorRoleCustomer}, statusPayload(order, ""))
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(s.logg.WithField(logCtx, "total_cents", order.TotalCents), "order created")
	return order, nil
}

func buildOrder(input CreateInput) (*models.Order, error) {
	if strings.TrimSpace(input.CustomerRef) == "" || strings.TrimSpace(input.SellerRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer ref and seller ref are required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	currency, err := enums.NormalizeCurrency(input.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency").
			WithDetails(map[string]any{"supported": enums.SupportedCurrencies()})
	}
	order := &models.Order{
		ID:            uuid.New(),
		CustomerRef:   input.CustomerRef,
		SellerRef:     input.SellerRef,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusUnpaid,
		Currency:      currency.String(),
	}
	var total int64
	for i, item := range input.Items {
		if strings.TrimSpace(item.ProductRef) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: product ref is required", i))
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: quantity must be positive", i))
		}
		if item.UnitPriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: unit price must be non-negative", i))
		}
		line, err := money.LineTotal(item.Quantity, item.UnitPriceCents)
		if err == nil {
			total, err = money.Add(total, line)
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("item %d: amount too large", i))
		}
		order.Items = append(order.Items, models.OrderItem{
			ProductRef:     item.ProductRef,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: line,
		})
	}
	if input.TotalCents != nil && *input.TotalCents != total {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total does not match item lines").WithDetails(map[string]any{
			"expected_cents": total,
			"provided_cents": *input.TotalCents,
		})
	}
	order.TotalCents = total
	return order, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.load(ctx, s.repo, id)
}

func (s *service) List(ctx context.Context, filter ListFilter, params pagination.Params) (pagination.Page[models.Order], error) {
	page, err := s.repo.List(ctx, filter, params)
	switch {
	case errors.Is(err, pagination.ErrInvalidCursor):
		return page, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor").WithDetail("field", "cursor")
	case err != nil:
		return page, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return page, nil
}

func (s *service) FindByPaymentIntent(ctx context.Context, tx *gorm.DB, paymentIntentRef string) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindByPaymentIntent(ctx, paymentIntentRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found for payment intent").
				WithDetails(map[string]any{"payment_intent_ref": paymentIntentRef})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by payment intent")
	}
	return order, nil
}

func (s *service) AttachPaymentIntent(ctx context.Context, id uuid.UUID, paymentIntentRef string, actor Actor) (*models.Order, error) {
	paymentIntentRef = strings.TrimSpace(paymentIntentRef)
	if paymentIntentRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent ref is required")
	}
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if err := authorize(current, EventPaymentCaptured, actor); err != nil {
			return err
		}
		ok, err := repo.SetPaymentIntent(ctx, id, paymentIntentRef)
		if err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "payment intent already attached to another order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach payment intent")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment intent can only be attached once while the order is pending").
				WithDetails(map[string]any{"status": current.Status})
		}
		order, err = s.load(ctx, repo, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// RequestCapture asks the gateway to capture. The resulting provider webhook
// drives the transition; nothing changes locally here.
func (s *service) RequestCapture(ctx context.Context, id uuid.UUID, actor Actor) error {
	if s.gateway == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}
	order, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(order, EventPaymentCaptured, actor); err != nil {
		return err
	}
	if order.Status != enums.OrderStatusPending || order.PaymentIntentRef == nil {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order is not awaiting capture").
			WithDetails(map[string]any{"status": order.Status})
	}
	if err := s.gateway.CapturePayment(ctx, *order.PaymentIntentRef, "capture:"+order.ID.String()); err != nil {
		return err
	}
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(logCtx, "payment capture requested")
	return nil
}

func (s *service) Transition(ctx context.Context, id uuid.UUID, event Event, actor Actor) (*models.Order, error) {
	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.load(ctx, s.repo.WithTx(tx), id)
		if err != nil {
			return err
		}
		if err := authorize(order, event.Kind, actor); err != nil {
			return err
		}
		result, err = s.Apply(ctx, tx, order, event, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Outcome == OutcomeStockConflict {
		return result.Order, stockConflictError(result)
	}
	return result.Order, nil
}

// Apply runs one transition inside the caller's transaction. A capture whose
// stock cannot be committed is not an error here: the order is moved to
// STOCK_CONFLICT with a compensating refund and the caller commits that.
func (s *service) Apply(ctx context.Context, tx *gorm.DB, order *models.Order, event Event, actor Actor) (*Result, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	step, err := Next(*order, event)
	if err != nil {
		return nil, err
	}

	var result *Result
	switch event.Kind {
	case EventPaymentCaptured:
		result, err = s.capture(ctx, tx, order, step, actor)
	case EventCancel:
		result, err = s.cancel(ctx, tx, order, step, actor)
	case EventRefundApplied:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refunds are applied by the refund orchestrator")
	default:
		result, err = s.advance(ctx, tx, order, step, event, actor)
	}
	if err != nil {
		return nil, err
	}
	s.metrics.OrderTransition(string(event.Kind), string(result.Order.Status))
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"event":          event.Kind,
		"from_status":    order.Status,
		"status":         result.Order.Status,
		"payment_status": result.Order.PaymentStatus,
		"outcome":        result.Outcome,
	})
	if result.Outcome == OutcomeStockConflict {
		s.logg.Warn(logCtx, "order capture hit stock conflict")
	} else {
		s.logg.Info(logCtx, "order transitioned")
	}
	return result, nil
}

func (s *service) capture(ctx context.Context, tx *gorm.DB, order *models.Order, step Step, actor Actor) (*Result, error) {
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()
	guard := Guard{Status: order.Status, PaymentStatus: order.PaymentStatus}

	if err := tx.SavePoint(stockCommitSavepoint).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open stock savepoint")
	}
	ok, err := repo.UpdateIf(ctx, order.ID, guard, map[string]any{
		"status":          step.Status,
		"payment_status":  step.PaymentStatus,
		"captured_cents":  order.TotalCents,
		"paid_at":         now,
		"stock_committed": true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm order")
	}
	if !ok {
		return nil, concurrentUpdate(order)
	}

	conflict, err := s.commitStock(ctx, tx, repo, order)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		if err := tx.RollbackTo(stockCommitSavepoint).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "roll back stock commit")
		}
		return s.enterStockConflict(ctx, tx, order, guard, conflict, now, actor)
	}

	updated, err := s.load(ctx, repo, order.ID)
	if err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, step.Outbox, updated, actor, statusPayload(updated, order.Status)); err != nil {
		return nil, err
	}
	return &Result{Order: updated, Outcome: OutcomeApplied}, nil
}

// commitStock decrements every line at the seller's fulfillment warehouse and
// snapshots that warehouse on the line. A non-nil conflict means some line
// could not be satisfied.
func (s *service) commitStock(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order) (*ConflictDetail, error) {
	warehouse, err := s.warehouses.Resolve(ctx, tx, order.SellerRef)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return &ConflictDetail{ProductRef: firstProduct(order)}, nil
		}
		return nil, err
	}
	for _, item := range order.Items {
		err := s.ledger.Decrement(ctx, tx, ledger.Movement{
			ProductRef:    item.ProductRef,
			WarehouseRef:  warehouse,
			Quantity:      item.Quantity,
			Reason:        enums.StockMovementOrderCommit,
			ReferenceType: string(enums.AggregateOrder),
			ReferenceID:   &order.ID,
		})
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock) {
				return &ConflictDetail{ProductRef: item.ProductRef, WarehouseRef: warehouse}, nil
			}
			return nil, err
		}
		if err := repo.SetItemWarehouse(ctx, item.ID, warehouse); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "snapshot fulfillment warehouse")
		}
	}
	return nil, nil
}

func (s *service) enterStockConflict(ctx context.Context, tx *gorm.DB, order *models.Order, guard Guard, conflict *ConflictDetail, now time.Time, actor Actor) (*Result, error) {
	repo := s.repo.WithTx(tx)
	step := StockConflictStep(*order)
	ok, err := repo.UpdateIf(ctx, order.ID, guard, map[string]any{
		"status":          step.Status,
		"payment_status":  step.PaymentStatus,
		"captured_cents":  order.TotalCents,
		"paid_at":         now,
		"stock_committed": false,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stock conflict")
	}
	if !ok {
		return nil, concurrentUpdate(order)
	}
	updated, err := s.load(ctx, repo, order.ID)
	if err != nil {
		return nil, err
	}
	s.metrics.LedgerConflict("order_capture")

	var refund *models.Refund
	if step.RefundCents > 0 {
		refund, err = s.refunds.ScheduleRefund(ctx, tx, RefundRequest{
			Order:       updated,
			AmountCents: step.RefundCents,
			Method:      enums.RefundMethodOriginalPayment,
			Reason:      enums.RefundReasonStockConflict,
			Actor:       SystemActor,
		})
		if err != nil {
			return nil, err
		}
		if updated, err = s.load(ctx, repo, order.ID); err != nil {
			return nil, err
		}
	}
	payload := payloads.OrderStockConflictEvent{
		OrderStatusEvent: statusPayload(updated, order.Status),
		ProductRef:       conflict.ProductRef,
		WarehouseRef:     conflict.WarehouseRef,
	}
	if refund != nil {
		payload.RefundID = &refund.ID
	}
	if err := s.emit(ctx, tx, step.Outbox, updated, actor, payload); err != nil {
		return nil, err
	}
	return &Result{Order: updated, Outcome: OutcomeStockConflict, Refund: refund, Conflict: conflict}, nil
}

func (s *service) cancel(ctx context.Context, tx *gorm.DB, order *models.Order, step Step, actor Actor) (*Result, error) {
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()
	ok, err := repo.UpdateIf(ctx, order.ID, Guard{Status: order.Status, PaymentStatus: order.PaymentStatus}, map[string]any{
		"status":          step.Status,
		"cancelled_at":    now,
		"stock_committed": false,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}
	if !ok {
		return nil, concurrentUpdate(order)
	}

	if step.ReleaseStock {
		for _, item := range order.Items {
			if item.FulfillmentWarehouseRef == nil {
				return nil, pkgerrors.New(pkgerrors.CodeInternal, "committed item has no fulfillment warehouse").
					WithDetails(map[string]any{"order_item_id": item.ID.String()})
			}
			if err := s.ledger.Increment(ctx, tx, ledger.Movement{
				ProductRef:    item.ProductRef,
				WarehouseRef:  *item.FulfillmentWarehouseRef,
				Quantity:      item.Quantity,
				Reason:        enums.StockMovementOrderRelease,
				ReferenceType: string(enums.AggregateOrder),
				ReferenceID:   &order.ID,
			}); err != nil {
				return nil, err
			}
		}
	}

	updated, err := s.load(ctx, repo, order.ID)
	if err != nil {
		return nil, err
	}
	var refund *models.Refund
	if step.RefundCents > 0 {
		refund, err = s.refunds.ScheduleRefund(ctx, tx, RefundRequest{
			Order:       updated,
			AmountCents: step.RefundCents,
			Method:      enums.RefundMethodOriginalPayment,
			Reason:      enums.RefundReasonOrderCancellation,
			Actor:       actor,
		})
		if err != nil {
			return nil, err
		}
		if updated, err = s.load(ctx, repo, order.ID); err != nil {
			return nil, err
		}
	}
	payload := payloads.OrderCancelledEvent{
		OrderStatusEvent: statusPayload(updated, order.Status),
		StockReleased:    step.ReleaseStock,
	}
	if refund != nil {
		payload.RefundID = &refund.ID
	}
	if err := s.emit(ctx, tx, step.Outbox, updated, actor, payload); err != nil {
		return nil, err
	}
	return &Result{Order: updated, Outcome: OutcomeApplied, Refund: refund}, nil
}

func (s *service) advance(ctx context.Context, tx *gorm.DB, order *models.Order, step Step, event Event, actor Actor) (*Result, error) {
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()
	fields := map[string]any{
		"status":         step.Status,
		"payment_status": step.PaymentStatus,
	}
	switch event.Kind {
	case EventShip:
		fields["courier_ref"] = event.CourierRef
		fields["shipped_at"] = now
	case EventDeliver:
		fields["delivered_at"] = now
	}
	ok, err := repo.UpdateIf(ctx, order.ID, Guard{Status: order.Status, PaymentStatus: order.PaymentStatus}, fields)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
	}
	if !ok {
		return nil, concurrentUpdate(order)
	}
	updated, err := s.load(ctx, repo, order.ID)
	if err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, step.Outbox, updated, actor, statusPayload(updated, order.Status)); err != nil {
		return nil, err
	}
	return &Result{Order: updated, Outcome: OutcomeApplied}, nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, order *models.Order, actor Actor, data any) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.NewActorRef(actor.Ref, actor.Role),
		Data:          data,
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order event")
	}
	return nil
}

func statusPayload(order *models.Order, previous enums.OrderStatus) payloads.OrderStatusEvent {
	return payloads.OrderStatusEvent{
		OrderID:        order.ID,
		CustomerRef:    order.CustomerRef,
		SellerRef:      order.SellerRef,
		PreviousStatus: previous,
		Status:         order.Status,
		PaymentStatus:  order.PaymentStatus,
		TotalCents:     order.TotalCents,
		CourierRef:     order.CourierRef,
	}
}

// authorize scopes manual transitions: customers may only cancel their own
// orders, sellers may progress theirs, staff may do anything.
func authorize(order *models.Order, kind EventKind, actor Actor) error {
	if actor.Role.IsStaff() {
		return nil
	}
	if strings.TrimSpace(actor.Ref) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required")
	}
	switch actor.Role {
	case enums.ActorRoleCustomer:
		if order.CustomerRef == actor.Ref && (kind == EventCancel || kind == EventPaymentCaptured) {
			return nil
		}
	case enums.ActorRoleSeller:
		if order.SellerRef == actor.Ref && kind != EventPaymentCaptured && kind != EventPaymentFailed && kind != EventRefundApplied {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "actor may not perform this order operation")
}

func concurrentUpdate(order *models.Order) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently").
		WithDetails(map[string]any{"order_id": order.ID.String(), "expected_status": order.Status})
}

func stockConflictError(result *Result) error {
	details := map[string]any{"order_id": result.Order.ID.String()}
	if result.Conflict != nil {
		details["product_ref"] = result.Conflict.ProductRef
		details["warehouse_ref"] = result.Conflict.WarehouseRef
	}
	if result.Refund != nil {
		details["refund_id"] = result.Refund.ID.String()
	}
	return pkgerrors.New(pkgerrors.CodeStockConflict, "stock could not be committed for captured order").WithDetails(details)
}

func firstProduct(order *models.Order) string {
	if len(order.Items) == 0 {
		return ""
	}
	return order.Items[0].ProductRef
}
