package refunds

import (
	"context"
	"time"

	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists refunds and the reservation counter on their order.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, refund *models.Refund) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Refund, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error)
	ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Refund, error)
	ListCompensationCandidates(ctx context.Context, limit int) ([]uuid.UUID, error)
	Reserve(ctx context.Context, orderID uuid.UUID, amountCents int64) (bool, error)
	Release(ctx context.Context, orderID uuid.UUID, amountCents int64) error
	UpdateIfPending(ctx context.Context, id uuid.UUID, fields map[string]any) (bool, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID) error
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

func (r *repository) Create(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.WithContext(ctx).First(&refund, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error) {
	var rows []models.Refund
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Refund, error) {
	var rows []models.Refund
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at <= ?", enums.RefundStatusPending, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListCompensationCandidates finds failed or cancelled captures whose funds are
// not fully claimed by a refund and that have nothing in flight.
func (r *repository) ListCompensationCandidates(ctx context.Context, limit int) ([]uuid.UUID, error) {
	pending := r.db.Model(&models.Refund{}).
		Select("order_id").
		Where("status = ?", enums.RefundStatusPending)
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status IN ?", []enums.OrderStatus{enums.OrderStatusStockConflict, enums.OrderStatusCancelled}).
		Where("captured_cents > refund_reserved_cents").
		Where("id NOT IN (?)", pending).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// Reserve claims amount against the order's captured funds in one conditional
// update, so concurrent refunds can never jointly exceed the capture.
func (r *repository) Reserve(ctx context.Context, orderID uuid.UUID, amountCents int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND refund_reserved_cents + ? <= captured_cents", orderID, amountCents).
		Updates(map[string]any{
			"refund_reserved_cents": gorm.Expr("refund_reserved_cents + ?", amountCents),
			"updated_at":            time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) Release(ctx context.Context, orderID uuid.UUID, amountCents int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND refund_reserved_cents >= ?", orderID, amountCents).
		Updates(map[string]any{
			"refund_reserved_cents": gorm.Expr("refund_reserved_cents - ?", amountCents),
			"updated_at":            time.Now().UTC(),
		}).Error
}

// UpdateIfPending finalizes a refund only once; a false result means another
// worker already moved it out of PENDING.
func (r *repository) UpdateIfPending(ctx context.Context, id uuid.UUID, fields map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("id = ? AND status = ?", id, enums.RefundStatusPending).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
}
