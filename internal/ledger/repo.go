package ledger

import (
	"context"
	"time"

	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages persistence for stock ledger rows and their movement journal.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	DecrementIfAvailable(ctx context.Context, productRef, warehouseRef string, qty int64) (bool, error)
	Increment(ctx context.Context, productRef, warehouseRef string, qty int64) error
	InsertMovement(ctx context.Context, movement *models.StockMovement) error
	Find(ctx context.Context, productRef, warehouseRef string) (*models.StockLedgerEntry, error)
	List(ctx context.Context, filter ListFilter) ([]models.StockLedgerEntry, error)
	SumByProduct(ctx context.Context, productRef string) (int64, error)
	ListMovements(ctx context.Context, productRef, warehouseRef string, limit int) ([]models.StockMovement, error)
}

// ListFilter narrows ledger listings. Empty fields match everything.
type ListFilter struct {
	ProductRef   string
	WarehouseRef string
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// DecrementIfAvailable is the single conditional update that keeps quantity non-negative.
// It reports false when the row is missing or holds fewer than qty units.
func (r *repository) DecrementIfAvailable(ctx context.Context, productRef, warehouseRef string, qty int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.StockLedgerEntry{}).
		Where("product_ref = ? AND warehouse_ref = ? AND quantity >= ?", productRef, warehouseRef, qty).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity - ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) Increment(ctx context.Context, productRef, warehouseRef string, qty int64) error {
	entry := models.StockLedgerEntry{
		ProductRef:   productRef,
		WarehouseRef: warehouseRef,
		Quantity:     qty,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "product_ref"}, {Name: "warehouse_ref"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity":   gorm.Expr("stock_ledger_entries.quantity + ?", qty),
				"updated_at": time.Now().UTC(),
			}),
		}).
		Create(&entry).Error
}

func (r *repository) InsertMovement(ctx context.Context, movement *models.StockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) Find(ctx context.Context, productRef, warehouseRef string) (*models.StockLedgerEntry, error) {
	var entry models.StockLedgerEntry
	err := r.db.WithContext(ctx).
		Where("product_ref = ? AND warehouse_ref = ?", productRef, warehouseRef).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.StockLedgerEntry, error) {
	query := r.db.WithContext(ctx).Model(&models.StockLedgerEntry{})
	if filter.ProductRef != "" {
		query = query.Where("product_ref = ?", filter.ProductRef)
	}
	if filter.WarehouseRef != "" {
		query = query.Where("warehouse_ref = ?", filter.WarehouseRef)
	}
	var entries []models.StockLedgerEntry
	if err := query.Order("product_ref ASC").Order("warehouse_ref ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) SumByProduct(ctx context.Context, productRef string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.StockLedgerEntry{}).
		Where("product_ref = ?", productRef).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) ListMovements(ctx context.Context, productRef, warehouseRef string, limit int) ([]models.StockMovement, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).Where("product_ref = ?", productRef)
	if warehouseRef != "" {
		query = query.Where("warehouse_ref = ?", warehouseRef)
	}
	var movements []models.StockMovement
	if err := query.Order("created_at DESC").Limit(limit).Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}
