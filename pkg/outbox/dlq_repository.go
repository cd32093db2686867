package outbox

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	"github.com/angelmondragon/commerce-core/pkg/pagination"
)

const maxErrorLen = 1024

// ErrNotDeadLettered is returned by Requeue for an event that has no DLQ row.
var ErrNotDeadLettered = errors.New("outbox event is not dead-lettered")

// DLQRepository stores outbox events the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return ErrTxRequired
	}
	if !entry.ErrorReason.IsValid() {
		return fmt.Errorf("invalid dlq reason %q", entry.ErrorReason)
	}
	if entry.ErrorMessage != nil {
		msg := truncateError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var dlq models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&dlq).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dlq, nil
}

// List pages dead letters newest first, optionally narrowed to one reason.
func (r *DLQRepository) List(ctx context.Context, reason *enums.OutboxDLQErrorReason, params pagination.Params) (pagination.Page[models.OutboxDLQ], error) {
	scope, err := pagination.Scope(params)
	if err != nil {
		return pagination.Page[models.OutboxDLQ]{}, err
	}
	query := r.db.WithContext(ctx).Scopes(scope)
	if reason != nil {
		query = query.Where("error_reason = ?", *reason)
	}
	var rows []models.OutboxDLQ
	if err := query.Find(&rows).Error; err != nil {
		return pagination.Page[models.OutboxDLQ]{}, err
	}
	return pagination.NewPage(rows, params.Limit, func(row models.OutboxDLQ) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	}), nil
}

// Requeue removes the dead letter and resets the source event's attempts so
// the publisher picks it up on its next poll.
func (r *DLQRepository) Requeue(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) error {
	if tx == nil {
		return ErrTxRequired
	}
	deleted := tx.WithContext(ctx).Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{})
	if deleted.Error != nil {
		return deleted.Error
	}
	if deleted.RowsAffected == 0 {
		return ErrNotDeadLettered
	}
	return tx.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ? AND published_at IS NULL", eventID).
		Updates(map[string]any{
			"attempt_count": 0,
			"last_error":    nil,
		}).Error
}

// truncateError caps the stored message without splitting a UTF-8 sequence.
func truncateError(message string) string {
	if len(message) <= maxErrorLen {
		return message
	}
	cut := maxErrorLen
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
