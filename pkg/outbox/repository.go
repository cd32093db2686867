package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/commerce-core/pkg/db/models"
)

// pruneBatchSize bounds each DELETE issued by DeletePublishedBefore.
const pruneBatchSize = 500

// Repository reads and updates outbox_events. Writes that belong to a domain
// change take the caller's transaction.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert adds rows inside tx.
func (r *Repository) Insert(tx *gorm.DB, rows ...models.OutboxEvent) error {
	if tx == nil {
		return ErrTxRequired
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Create(&rows).Error
}

// FetchUnpublished returns the oldest unpublished rows still under maxAttempts.
// On Postgres the rows are locked with SKIP LOCKED so parallel publishers never
// pick the same batch.
func (r *Repository) FetchUnpublished(ctx context.Context, tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	conn := r.conn(tx)
	query := conn.WithContext(ctx).
		Where("published_at IS NULL AND attempt_count < ?", maxAttempts).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit)
	if conn.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []models.OutboxEvent
	return rows, query.Find(&rows).Error
}

func (r *Repository) MarkPublished(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return r.update(ctx, tx, id, map[string]any{
		"published_at": time.Now().UTC(),
		"last_error":   nil,
	})
}

// MarkFailed records a failed attempt; the row stays eligible until it runs
// out of attempts.
func (r *Repository) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.update(ctx, tx, id, map[string]any{
		"last_error":    truncateError(cause.Error()),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// MarkTerminal pins attempt_count at the terminal value so the row is never
// fetched again.
func (r *Repository) MarkTerminal(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause error, terminalAttempts int) error {
	return r.update(ctx, tx, id, map[string]any{
		"last_error":    truncateError(cause.Error()),
		"attempt_count": terminalAttempts,
	})
}

// DeletePublishedBefore removes published rows older than cutoff in bounded
// batches and returns the total removed. Unpublished rows are never touched.
func (r *Repository) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch := r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
			Select("id").
			Where("published_at IS NOT NULL AND published_at < ?", cutoff).
			Limit(pruneBatchSize)
		result := r.db.WithContext(ctx).Where("id IN (?)", batch).Delete(&models.OutboxEvent{})
		if result.Error != nil {
			return total, result.Error
		}
		total += result.RowsAffected
		if result.RowsAffected < pruneBatchSize {
			return total, nil
		}
	}
}

func (r *Repository) update(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	return r.conn(tx).WithContext(ctx).Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields).Error
}

func (r *Repository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}
