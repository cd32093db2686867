package transfers

import (
	"context"

	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	"github.com/angelmondragon/commerce-core/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists stock transfers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, transfer *models.StockTransfer) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.StockTransfer, error)
	UpdateStatusIf(ctx context.Context, id uuid.UUID, from []enums.TransferStatus, to enums.TransferStatus, fields map[string]any) (bool, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) (pagination.Page[models.StockTransfer], error)
}

// ListFilter narrows transfer listings.
type ListFilter struct {
	Status     *enums.TransferStatus
	ProductRef string
	// WarehouseRef matches either end of the transfer.
	WarehouseRef string
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

func (r *repository) Create(ctx context.Context, transfer *models.StockTransfer) error {
	return r.db.WithContext(ctx).Create(transfer).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.StockTransfer, error) {
	var transfer models.StockTransfer
	if err := r.db.WithContext(ctx).First(&transfer, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &transfer, nil
}

// UpdateStatusIf flips the status only while it is still one of from. The first
// writer wins; a false result means another caller already moved the row.
func (r *repository) UpdateStatusIf(ctx context.Context, id uuid.UUID, from []enums.TransferStatus, to enums.TransferStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	result := r.db.WithContext(ctx).
		Model(&models.StockTransfer{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, params pagination.Params) (pagination.Page[models.StockTransfer], error) {
	query := r.db.WithContext(ctx).Model(&models.StockTransfer{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ProductRef != "" {
		query = query.Where("product_ref = ?", filter.ProductRef)
	}
	if filter.WarehouseRef != "" {
		query = query.Where("(from_warehouse_ref = ? OR to_warehouse_ref = ?)", filter.WarehouseRef, filter.WarehouseRef)
	}
	scoped, err := pagination.Scope(params)
	if err != nil {
		return pagination.Page[models.StockTransfer]{}, err
	}
	var rows []models.StockTransfer
	if err := query.Scopes(scoped).Find(&rows).Error; err != nil {
		return pagination.Page[models.StockTransfer]{}, err
	}
	return pagination.NewPage(rows, params.Limit, func(t models.StockTransfer) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	}), nil
}
