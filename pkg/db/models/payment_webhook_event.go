package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentWebhookEvent records every provider delivery keyed by its external id.
type PaymentWebhookEvent struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Provider         string          `gorm:"column:provider;type:text;not null;default:'stripe'"`
	ExternalEventID  string          `gorm:"column:external_event_id;not null;uniqueIndex:idx_payment_webhook_events_external"`
	Type             string          `gorm:"column:type;type:text;not null"`
	PaymentIntentRef string          `gorm:"column:payment_intent_ref;not null;index"`
	OrderID          *uuid.UUID      `gorm:"column:order_id;type:uuid"`
	Payload          json.RawMessage `gorm:"column:payload;type:jsonb"`
	Processed        bool            `gorm:"column:processed;not null;default:false"`
	Outcome          *string         `gorm:"column:outcome;type:text"`
	ReceivedAt       time.Time       `gorm:"column:received_at;not null"`
	ProcessedAt      *time.Time      `gorm:"column:processed_at"`
}

func (e *PaymentWebhookEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
