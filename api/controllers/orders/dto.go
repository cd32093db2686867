package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	"github.com/angelmondragon/commerce-core/pkg/money"
)

type createOrderRequest struct {
	CustomerRef string             `json:"customer_ref,omitempty" validate:"max=128"`
	SellerRef   string             `json:"seller_ref" validate:"required,max=128"`
	Currency    string             `json:"currency" validate:"omitempty,len=3,currency"`
	Total       *string            `json:"total,omitempty" validate:"omitempty,money"`
	Items       []orderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type orderItemRequest struct {
	ProductRef string `json:"product_ref" validate:"required,max=128"`
	Quantity   int64  `json:"quantity" validate:"required,min=1"`
	UnitPrice  string `json:"unit_price" validate:"required,money"`
}

type paymentIntentRequest struct {
	PaymentIntentRef string `json:"payment_intent_ref" validate:"required,max=255"`
}

type transitionRequest struct {
	Event      string `json:"event" validate:"required"`
	CourierRef string `json:"courier_ref,omitempty" validate:"max=255"`
}

type createRefundRequest struct {
	Amount          string     `json:"amount" validate:"required,money"`
	Method          string     `json:"method" validate:"required,max=32"`
	Reason          string     `json:"reason,omitempty" validate:"max=64"`
	ReturnRequestID *uuid.UUID `json:"return_request_id,omitempty"`
}

type orderResponse struct {
	ID               uuid.UUID           `json:"id"`
	CustomerRef      string              `json:"customer_ref"`
	SellerRef        string              `json:"seller_ref"`
	Status           enums.OrderStatus   `json:"status"`
	PaymentStatus    enums.PaymentStatus `json:"payment_status"`
	Currency         string              `json:"currency"`
	Total            string              `json:"total"`
	Captured         string              `json:"captured"`
	Refunded         string              `json:"refunded"`
	PaymentIntentRef *string             `json:"payment_intent_ref,omitempty"`
	CourierRef       *string             `json:"courier_ref,omitempty"`
	Items            []orderItemResponse `json:"items,omitempty"`
	PaidAt           *time.Time          `json:"paid_at,omitempty"`
	CancelledAt      *time.Time          `json:"cancelled_at,omitempty"`
	ShippedAt        *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt      *time.Time          `json:"delivered_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

type orderItemResponse struct {
	ID                      uuid.UUID `json:"id"`
	ProductRef              string    `json:"product_ref"`
	Quantity                int64     `json:"quantity"`
	UnitPrice               string    `json:"unit_price"`
	LineTotal               string    `json:"line_total"`
	FulfillmentWarehouseRef *string   `json:"fulfillment_warehouse_ref,omitempty"`
}

type refundResponse struct {
	ID                uuid.UUID          `json:"id"`
	OrderID           uuid.UUID          `json:"order_id"`
	Amount            string             `json:"amount"`
	Method            enums.RefundMethod `json:"method"`
	Reason            enums.RefundReason `json:"reason"`
	Status            enums.RefundStatus `json:"status"`
	ProviderRefundRef *string            `json:"provider_refund_ref,omitempty"`
	ReturnRequestID   *uuid.UUID         `json:"return_request_id,omitempty"`
	FailureReason     *string            `json:"failure_reason,omitempty"`
	Attempts          int                `json:"attempts"`
	CreatedAt         time.Time          `json:"created_at"`
	ProcessedAt       *time.Time         `json:"processed_at,omitempty"`
}

func toOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		ID:               order.ID,
		CustomerRef:      order.CustomerRef,
		SellerRef:        order.SellerRef,
		Status:           order.Status,
		PaymentStatus:    order.PaymentStatus,
		Currency:         order.Currency,
		Total:            money.Format(order.TotalCents),
		Captured:         money.Format(order.CapturedCents),
		Refunded:         money.Format(order.RefundedCents),
		PaymentIntentRef: order.PaymentIntentRef,
		CourierRef:       order.CourierRef,
		PaidAt:           order.PaidAt,
		CancelledAt:      order.CancelledAt,
		ShippedAt:        order.ShippedAt,
		DeliveredAt:      order.DeliveredAt,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:                      item.ID,
			ProductRef:              item.ProductRef,
			Quantity:                item.Quantity,
			UnitPrice:               money.Format(item.UnitPriceCents),
			LineTotal:               money.Format(item.LineTotalCents),
			FulfillmentWarehouseRef: item.FulfillmentWarehouseRef,
		})
	}
	return resp
}

func toRefundResponse(refund *models.Refund) refundResponse {
	return refundResponse{
		ID:                refund.ID,
		OrderID:           refund.OrderID,
		Amount:            money.Format(refund.AmountCents),
		Method:            refund.Method,
		Reason:            refund.Reason,
		Status:            refund.Status,
		ProviderRefundRef: refund.ProviderRefundRef,
		ReturnRequestID:   refund.ReturnRequestID,
		FailureReason:     refund.FailureReason,
		Attempts:          refund.Attempts,
		CreatedAt:         refund.CreatedAt,
		ProcessedAt:       refund.ProcessedAt,
	}
}
