package payloads

import (
	"github.com/angelmondragon/commerce-core/pkg/enums"
	"github.com/google/uuid"
)

// OrderStatusEvent carries the order snapshot for every lifecycle transition.
type OrderStatusEvent struct {
	OrderID        uuid.UUID           `json:"order_id"`
	CustomerRef    string              `json:"customer_ref"`
	SellerRef      string              `json:"seller_ref"`
	PreviousStatus enums.OrderStatus   `json:"previous_status,omitempty"`
	Status         enums.OrderStatus   `json:"status"`
	PaymentStatus  enums.PaymentStatus `json:"payment_status"`
	TotalCents     int64               `json:"total_cents"`
	CourierRef     *string             `json:"courier_ref,omitempty"`
}

// OrderCancelledEvent is emitted when an order is cancelled before shipment.
type OrderCancelledEvent struct {
	OrderStatusEvent
	StockReleased bool       `json:"stock_released"`
	RefundID      *uuid.UUID `json:"refund_id,omitempty"`
}

// OrderStockConflictEvent reports a capture whose stock could not be committed.
type OrderStockConflictEvent struct {
	OrderStatusEvent
	ProductRef   string     `json:"product_ref"`
	WarehouseRef string     `json:"warehouse_ref"`
	RefundID     *uuid.UUID `json:"refund_id,omitempty"`
}

// RefundEvent covers scheduled, completed and failed refunds.
type RefundEvent struct {
	RefundID          uuid.UUID          `json:"refund_id"`
	OrderID           uuid.UUID          `json:"order_id"`
	AmountCents       int64              `json:"amount_cents"`
	Method            enums.RefundMethod `json:"method"`
	Reason            enums.RefundReason `json:"reason"`
	Status            enums.RefundStatus `json:"status"`
	ProviderRefundRef *string            `json:"provider_refund_ref,omitempty"`
	FailureReason     *string            `json:"failure_reason,omitempty"`
}

// TransferEvent covers every stock transfer transition.
type TransferEvent struct {
	TransferID       uuid.UUID            `json:"transfer_id"`
	ProductRef       string               `json:"product_ref"`
	FromWarehouseRef string               `json:"from_warehouse_ref"`
	ToWarehouseRef   string               `json:"to_warehouse_ref"`
	Quantity         int64                `json:"quantity"`
	Status           enums.TransferStatus `json:"status"`
}
