package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/commerce-core/pkg/enums"
)

// Refund is one attempt to return money for an order. Failed rows stay as an audit trail.
type Refund struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	AmountCents       int64              `gorm:"column:amount_cents;not null;check:chk_refunds_amount,amount_cents > 0"`
	Method            enums.RefundMethod `gorm:"column:method;type:text;not null"`
	Reason            enums.RefundReason `gorm:"column:reason;type:text;not null"`
	Status            enums.RefundStatus `gorm:"column:status;type:text;not null;default:'PENDING';index"`
	ProviderRefundRef *string            `gorm:"column:provider_refund_ref"`
	ReturnRequestID   *uuid.UUID         `gorm:"column:return_request_id;type:uuid"`
	ActorRef          string             `gorm:"column:actor_ref;not null"`
	ActorRole         enums.ActorRole    `gorm:"column:actor_role;type:text;not null"`
	FailureReason     *string            `gorm:"column:failure_reason"`
	Attempts          int                `gorm:"column:attempts;not null;default:0"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
	ProcessedAt       *time.Time         `gorm:"column:processed_at"`
}

func (r *Refund) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// StoreCreditBalance is a customer's internal refundable balance.
type StoreCreditBalance struct {
	CustomerRef  string    `gorm:"column:customer_ref;primaryKey"`
	BalanceCents int64     `gorm:"column:balance_cents;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// StoreCreditEntry is the idempotent credit written for a refund.
type StoreCreditEntry struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CustomerRef string    `gorm:"column:customer_ref;not null;index"`
	RefundID    uuid.UUID `gorm:"column:refund_id;type:uuid;not null;uniqueIndex:idx_store_credit_entries_refund"`
	AmountCents int64     `gorm:"column:amount_cents;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (e *StoreCreditEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// ReturnRequest is a customer return that a cancellation refund can finalize.
type ReturnRequest struct {
	ID          uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;index"`
	Status      enums.ReturnRequestStatus `gorm:"column:status;type:text;not null;default:'REQUESTED'"`
	Reason      *string                   `gorm:"column:reason"`
	RefundID    *uuid.UUID                `gorm:"column:refund_id;type:uuid"`
	CreatedAt   time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt *time.Time                `gorm:"column:completed_at"`
}

func (r *ReturnRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
