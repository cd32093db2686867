package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/commerce-core/pkg/enums"
)

// StockLedgerEntry is the authoritative counter for one product in one warehouse.
type StockLedgerEntry struct {
	ProductRef   string    `gorm:"column:product_ref;primaryKey"`
	WarehouseRef string    `gorm:"column:warehouse_ref;primaryKey"`
	Quantity     int64     `gorm:"column:quantity;not null;default:0;check:chk_stock_ledger_non_negative,quantity >= 0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// StockMovement is the append-only journal row written with every ledger mutation.
type StockMovement struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	ProductRef    string                    `gorm:"column:product_ref;not null;index:idx_stock_movements_key"`
	WarehouseRef  string                    `gorm:"column:warehouse_ref;not null;index:idx_stock_movements_key"`
	Delta         int64                     `gorm:"column:delta;not null"`
	Reason        enums.StockMovementReason `gorm:"column:reason;type:text;not null"`
	ReferenceType string                    `gorm:"column:reference_type;type:text;not null"`
	ReferenceID   *uuid.UUID                `gorm:"column:reference_id;type:uuid;index"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// StockTransfer moves units between two warehouses through an approval workflow.
type StockTransfer struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	ProductRef       string               `gorm:"column:product_ref;not null;index"`
	FromWarehouseRef string               `gorm:"column:from_warehouse_ref;not null;check:chk_stock_transfers_distinct,from_warehouse_ref <> to_warehouse_ref"`
	ToWarehouseRef   string               `gorm:"column:to_warehouse_ref;not null"`
	Quantity         int64                `gorm:"column:quantity;not null;check:chk_stock_transfers_qty,quantity > 0"`
	Status           enums.TransferStatus `gorm:"column:status;type:text;not null;default:'REQUESTED';index"`
	RequestedBy      string               `gorm:"column:requested_by;not null"`
	ApprovedBy       *string              `gorm:"column:approved_by"`
	FinalizedBy      *string              `gorm:"column:finalized_by"`
	Notes            *string              `gorm:"column:notes"`
	ApprovedAt       *time.Time           `gorm:"column:approved_at"`
	CompletedAt      *time.Time           `gorm:"column:completed_at"`
	CancelledAt      *time.Time           `gorm:"column:cancelled_at"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *StockTransfer) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// SellerWarehouse lists the warehouses a seller may fulfill from.
type SellerWarehouse struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SellerRef    string    `gorm:"column:seller_ref;not null;uniqueIndex:idx_seller_warehouses_pair"`
	WarehouseRef string    `gorm:"column:warehouse_ref;not null;uniqueIndex:idx_seller_warehouses_pair"`
	IsDefault    bool      `gorm:"column:is_default;not null;default:false"`
	Priority     int       `gorm:"column:priority;not null;default:100"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (w *SellerWarehouse) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}
