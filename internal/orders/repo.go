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

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByPaymentIntent(ctx context.Context, paymentIntentRef string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Where("payment_intent_ref = ?", paymentIntentRef).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, params pagination.Params) (pagination.Page[models.Order], error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.CustomerRef != "" {
		query = query.Where("customer_ref = ?", filter.CustomerRef)
	}
	if filter.SellerRef != "" {
		query = query.Where("seller_ref = ?", filter.SellerRef)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	scoped, err := pagination.Scope(params)
	if err != nil {
		return pagination.Page[models.Order]{}, err
	}
	var rows []models.Order
	if err := query.Scopes(scoped).Preload("Items").Find(&rows).Error; err != nil {
		return pagination.Page[models.Order]{}, err
	}
	return pagination.NewPage(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}

// SetPaymentIntent records the provider reference while the order is still
// PENDING. Re-attaching the same reference is a no-op success.
func (r *repository) SetPaymentIntent(ctx context.Context, id uuid.UUID, paymentIntentRef string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND (payment_intent_ref IS NULL OR payment_intent_ref = ?)", id, enums.OrderStatusPending, paymentIntentRef).
		Updates(map[string]any{
			"payment_intent_ref": paymentIntentRef,
			"updated_at":         time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// UpdateIf applies fields only if the order still matches guard. It is the
// only write path for status and payment status.
func (r *repository) UpdateIf(ctx context.Context, id uuid.UUID, guard Guard, fields map[string]any) (bool, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	for k, v := range fields {
		updates[k] = v
	}
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND payment_status = ?", id, guard.Status, guard.PaymentStatus).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) SetItemWarehouse(ctx context.Context, itemID uuid.UUID, warehouseRef string) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{ID: itemID}).
		Update("fulfillment_warehouse_ref", warehouseRef).Error
}

// ApplyRefund adds a completed refund to the order and derives the payment
// status in the same statement so concurrent completions cannot lose an update.
func (r *repository) ApplyRefund(ctx context.Context, id uuid.UUID, amountCents int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status IN ? AND refunded_cents + ? <= captured_cents", id,
			[]enums.PaymentStatus{enums.PaymentStatusPaid, enums.PaymentStatusPartiallyRefunded}, amountCents).
		Updates(map[string]any{
			"refunded_cents": gorm.Expr("refunded_cents + ?", amountCents),
			"payment_status": gorm.Expr("CASE WHEN refunded_cents + ? >= captured_cents THEN ? ELSE ? END",
				amountCents, enums.PaymentStatusRefunded, enums.PaymentStatusPartiallyRefunded),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListStalePending returns unpaid PENDING orders created before the cutoff,
// oldest first.
func (r *repository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status = ? AND payment_status = ? AND created_at < ?", enums.OrderStatusPending, enums.PaymentStatusUnpaid, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
