package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/commerce-core/pkg/enums"
)

// Order is the commercial record mutated only through the order state machine.
type Order struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CustomerRef         string              `gorm:"column:customer_ref;not null;index"`
	SellerRef           string              `gorm:"column:seller_ref;not null;index"`
	Status              enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'PENDING';index"`
	PaymentStatus       enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'UNPAID'"`
	Currency            string              `gorm:"column:currency;type:text;not null;default:'USD'"`
	TotalCents          int64               `gorm:"column:total_cents;not null;check:chk_orders_total,total_cents >= 0"`
	CapturedCents       int64               `gorm:"column:captured_cents;not null;default:0"`
	RefundedCents       int64               `gorm:"column:refunded_cents;not null;default:0"`
	RefundReservedCents int64               `gorm:"column:refund_reserved_cents;not null;default:0;check:chk_orders_refund_cap,refund_reserved_cents <= captured_cents"`
	PaymentIntentRef    *string             `gorm:"column:payment_intent_ref;uniqueIndex"`
	CourierRef          *string             `gorm:"column:courier_ref"`
	StockCommitted      bool                `gorm:"column:stock_committed;not null;default:false"`
	PaidAt              *time.Time          `gorm:"column:paid_at"`
	CancelledAt         *time.Time          `gorm:"column:cancelled_at"`
	ShippedAt           *time.Time          `gorm:"column:shipped_at"`
	DeliveredAt         *time.Time          `gorm:"column:delivered_at"`
	Items               []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// RefundableCents is the captured amount not yet claimed by a pending or completed refund.
func (o Order) RefundableCents() int64 {
	remaining := o.CapturedCents - o.RefundReservedCents
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ErrPriceSnapshotImmutable is returned when an update tries to rewrite a purchased price.
var ErrPriceSnapshotImmutable = errors.New("order item price snapshot is immutable")

// OrderItem snapshots the price paid for a product at order time.
type OrderItem struct {
	ID                      uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID                 uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductRef              string    `gorm:"column:product_ref;not null"`
	Quantity                int64     `gorm:"column:quantity;not null;check:chk_order_items_qty,quantity > 0"`
	UnitPriceCents          int64     `gorm:"column:unit_price_cents;not null"`
	LineTotalCents          int64     `gorm:"column:line_total_cents;not null"`
	FulfillmentWarehouseRef *string   `gorm:"column:fulfillment_warehouse_ref"`
	CreatedAt               time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

func (i *OrderItem) BeforeUpdate(tx *gorm.DB) error {
	if tx.Statement.Changed("UnitPriceCents", "Quantity", "ProductRef") {
		return ErrPriceSnapshotImmutable
	}
	return nil
}
