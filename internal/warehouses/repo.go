package warehouses

import (
	"context"

	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists seller to warehouse assignments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, assignment *models.SellerWarehouse) error
	ClearDefault(ctx context.Context, sellerRef string) error
	Find(ctx context.Context, sellerRef, warehouseRef string) (*models.SellerWarehouse, error)
	FindPreferred(ctx context.Context, sellerRef string) (*models.SellerWarehouse, error)
	ListBySeller(ctx context.Context, sellerRef string) ([]models.SellerWarehouse, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Upsert(ctx context.Context, assignment *models.SellerWarehouse) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "seller_ref"}, {Name: "warehouse_ref"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_default", "priority"}),
		}).
		Create(assignment).Error
}

func (r *repository) ClearDefault(ctx context.Context, sellerRef string) error {
	return r.db.WithContext(ctx).
		Model(&models.SellerWarehouse{}).
		Where("seller_ref = ? AND is_default = ?", sellerRef, true).
		Update("is_default", false).Error
}

func (r *repository) Find(ctx context.Context, sellerRef, warehouseRef string) (*models.SellerWarehouse, error) {
	var assignment models.SellerWarehouse
	err := r.db.WithContext(ctx).
		Where("seller_ref = ? AND warehouse_ref = ?", sellerRef, warehouseRef).
		First(&assignment).Error
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindPreferred orders by default flag, then priority, then age so the choice is stable.
func (r *repository) FindPreferred(ctx context.Context, sellerRef string) (*models.SellerWarehouse, error) {
	var assignment models.SellerWarehouse
	err := r.preferredOrder(r.db.WithContext(ctx).Where("seller_ref = ?", sellerRef)).
		First(&assignment).Error
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *repository) ListBySeller(ctx context.Context, sellerRef string) ([]models.SellerWarehouse, error) {
	var rows []models.SellerWarehouse
	err := r.preferredOrder(r.db.WithContext(ctx).Where("seller_ref = ?", sellerRef)).
		Find(&rows).Error
	return rows, err
}

func (r *repository) preferredOrder(query *gorm.DB) *gorm.DB {
	return query.
		Order("is_default DESC").
		Order("priority ASC").
		Order("created_at ASC").
		Order("id ASC")
}
