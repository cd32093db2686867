package paymentwebhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
)

// Repository persists webhook deliveries keyed by their external event id.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByExternalID(ctx context.Context, externalEventID string) (*models.PaymentWebhookEvent, error)
	Create(ctx context.Context, event *models.PaymentWebhookEvent) error
	MarkProcessed(ctx context.Context, id uuid.UUID, orderID *uuid.UUID, outcome enums.WebhookOutcome, at time.Time) error
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByExternalID(ctx context.Context, externalEventID string) (*models.PaymentWebhookEvent, error) {
	var event models.PaymentWebhookEvent
	if err := r.db.WithContext(ctx).Where("external_event_id = ?", externalEventID).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) Create(ctx context.Context, event *models.PaymentWebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) MarkProcessed(ctx context.Context, id uuid.UUID, orderID *uuid.UUID, outcome enums.WebhookOutcome, at time.Time) error {
	fields := map[string]any{
		"processed":    true,
		"outcome":      string(outcome),
		"processed_at": at,
	}
	if orderID != nil {
		fields["order_id"] = *orderID
	}
	return r.db.WithContext(ctx).
		Model(&models.PaymentWebhookEvent{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// DeleteProcessedBefore prunes processed rows received before cutoff, at most
// limit rows per call. Unprocessed rows are kept for inspection.
func (r *repository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	ids := r.db.WithContext(ctx).
		Model(&models.PaymentWebhookEvent{}).
		Select("id").
		Where("processed = ? AND received_at < ?", true, cutoff).
		Order("received_at ASC").
		Limit(limit)
	result := r.db.WithContext(ctx).
		Where("id IN (?)", ids).
		Delete(&models.PaymentWebhookEvent{})
	return result.RowsAffected, result.Error
}
