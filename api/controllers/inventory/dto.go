package inventory

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
)

type createTransferRequest struct {
	ProductRef       string  `json:"product_ref" validate:"required,max=128"`
	FromWarehouseRef string  `json:"from_warehouse_ref" validate:"required,max=128"`
	ToWarehouseRef   string  `json:"to_warehouse_ref" validate:"required,max=128,nefield=FromWarehouseRef"`
	Quantity         int64   `json:"quantity" validate:"required,min=1"`
	Notes            *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type adjustmentRequest struct {
	ProductRef   string `json:"product_ref" validate:"required,max=128"`
	WarehouseRef string `json:"warehouse_ref" validate:"required,max=128"`
	Delta        int64  `json:"delta" validate:"required"`
}

type transferResponse struct {
	ID               uuid.UUID            `json:"id"`
	ProductRef       string               `json:"product_ref"`
	FromWarehouseRef string               `json:"from_warehouse_ref"`
	ToWarehouseRef   string               `json:"to_warehouse_ref"`
	Quantity         int64                `json:"quantity"`
	Status           enums.TransferStatus `json:"status"`
	RequestedBy      string               `json:"requested_by"`
	ApprovedBy       *string              `json:"approved_by,omitempty"`
	FinalizedBy      *string              `json:"finalized_by,omitempty"`
	Notes            *string              `json:"notes,omitempty"`
	ApprovedAt       *time.Time           `json:"approved_at,omitempty"`
	CompletedAt      *time.Time           `json:"completed_at,omitempty"`
	CancelledAt      *time.Time           `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
}

type stockResponse struct {
	ProductRef   string    `json:"product_ref"`
	WarehouseRef string    `json:"warehouse_ref"`
	Quantity     int64     `json:"quantity"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type stockListResponse struct {
	Entries []stockResponse `json:"entries"`
	Total   *int64          `json:"total,omitempty"`
}

func toTransferResponse(t *models.StockTransfer) transferResponse {
	return transferResponse{
		ID:               t.ID,
		ProductRef:       t.ProductRef,
		FromWarehouseRef: t.FromWarehouseRef,
		ToWarehouseRef:   t.ToWarehouseRef,
		Quantity:         t.Quantity,
		Status:           t.Status,
		RequestedBy:      t.RequestedBy,
		ApprovedBy:       t.ApprovedBy,
		FinalizedBy:      t.FinalizedBy,
		Notes:            t.Notes,
		ApprovedAt:       t.ApprovedAt,
		CompletedAt:      t.CompletedAt,
		CancelledAt:      t.CancelledAt,
		CreatedAt:        t.CreatedAt,
	}
}

func toStockResponse(e *models.StockLedgerEntry) stockResponse {
	return stockResponse{
		ProductRef:   e.ProductRef,
		WarehouseRef: e.WarehouseRef,
		Quantity:     e.Quantity,
		UpdatedAt:    e.UpdatedAt,
	}
}
