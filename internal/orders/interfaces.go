package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	"github.com/angelmondragon/commerce-core/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPaymentIntent(ctx context.Context, paymentIntentRef string) (*models.Order, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) (pagination.Page[models.Order], error)
	SetPaymentIntent(ctx context.Context, id uuid.UUID, paymentIntentRef string) (bool, error)
	UpdateIf(ctx context.Context, id uuid.UUID, guard Guard, fields map[string]any) (bool, error)
	SetItemWarehouse(ctx context.Context, itemID uuid.UUID, warehouseRef string) error
	ApplyRefund(ctx context.Context, id uuid.UUID, amountCents int64) (bool, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error)
}

// Guard is the state an optimistic update expects to still hold.
type Guard struct {
	Status        enums.OrderStatus
	PaymentStatus enums.PaymentStatus
}

// ListFilter narrows order listings.
type ListFilter struct {
	CustomerRef string
	SellerRef   string
	Status      *enums.OrderStatus
}

// WarehouseResolver supplies the warehouse a seller fulfills from.
type WarehouseResolver interface {
	Resolve(ctx context.Context, tx *gorm.DB, sellerRef string) (string, error)
}

// RefundScheduler queues a PENDING refund inside the caller's transaction,
// reserving its amount against the order's captured funds.
type RefundScheduler interface {
	ScheduleRefund(ctx context.Context, tx *gorm.DB, req RefundRequest) (*models.Refund, error)
}

// RefundRequest asks for a refund on behalf of an order transition.
type RefundRequest struct {
	Order       *models.Order
	AmountCents int64
	Method      enums.RefundMethod
	Reason      enums.RefundReason
	Actor       Actor
}

// PaymentCapturer asks the gateway to capture an authorized payment.
type PaymentCapturer interface {
	CapturePayment(ctx context.Context, paymentRef, idempotencyKey string) error
}

// Actor identifies who requests a transition.
type Actor struct {
	Ref  string
	Role enums.ActorRole
}

// SystemActor is used for transitions driven by provider webhooks and workers.
var SystemActor = Actor{Ref: "system", Role: enums.ActorRoleSystem}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Clock is injectable for deterministic timestamps in tests.
type Clock func() time.Time
