package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"github.com/angelmondragon/commerce-core/pkg/logger"
	"github.com/angelmondragon/commerce-core/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service is the atomic stock primitive shared by order fulfillment and transfers.
// Mutations accept the caller's transaction so they commit with the caller's
// state change; a nil tx runs the mutation in its own transaction.
type Service interface {
	Decrement(ctx context.Context, tx *gorm.DB, movement Movement) error
	Increment(ctx context.Context, tx *gorm.DB, movement Movement) error
	Adjust(ctx context.Context, input AdjustInput) (*models.StockLedgerEntry, error)
	Get(ctx context.Context, productRef, warehouseRef string) (*models.StockLedgerEntry, error)
	List(ctx context.Context, filter ListFilter) ([]models.StockLedgerEntry, error)
	Total(ctx context.Context, productRef string) (int64, error)
	Movements(ctx context.Context, productRef, warehouseRef string, limit int) ([]models.StockMovement, error)
}

// Movement describes one ledger mutation and what caused it.
type Movement struct {
	ProductRef    string
	WarehouseRef  string
	Quantity      int64
	Reason        enums.StockMovementReason
	ReferenceType string
	ReferenceID   *uuid.UUID
}

// AdjustInput is an admin correction (receiving, shrinkage). Delta may be negative.
type AdjustInput struct {
	ProductRef   string
	WarehouseRef string
	Delta        int64
	ActorRef     string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams wires the ledger service.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Logger  *logger.Logger
	Metrics *metrics.CommerceMetrics
}

type service struct {
	repo    Repository
	tx      txRunner
	logg    *logger.Logger
	metrics *metrics.CommerceMetrics
}

// NewService wires a ledger service with the provided repository.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: params.Repo, tx: params.Tx, logg: logg, metrics: params.Metrics}, nil
}

func (s *service) Decrement(ctx context.Context, tx *gorm.DB, movement Movement) error {
	if err := validateMovement(movement); err != nil {
		return err
	}
	return s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.DecrementIfAvailable(ctx, movement.ProductRef, movement.WarehouseRef, movement.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
		}
		if !ok {
			s.metrics.LedgerConflict(string(movement.Reason))
			available := int64(0)
			if entry, findErr := repo.Find(ctx, movement.ProductRef, movement.WarehouseRef); findErr == nil {
				available = entry.Quantity
			}
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"product_ref":   movement.ProductRef,
				"warehouse_ref": movement.WarehouseRef,
				"requested":     movement.Quantity,
				"available":     available,
				"reason":        movement.Reason,
			})
			s.logg.Warn(logCtx, "stock decrement rejected")
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").WithDetails(map[string]any{
				"product_ref":   movement.ProductRef,
				"warehouse_ref": movement.WarehouseRef,
				"requested":     movement.Quantity,
				"available":     available,
			})
		}
		return s.journal(ctx, repo, movement, -movement.Quantity)
	})
}

func (s *service) Increment(ctx context.Context, tx *gorm.DB, movement Movement) error {
	if err := validateMovement(movement); err != nil {
		return err
	}
	return s.inTx(ctx, tx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Increment(ctx, movement.ProductRef, movement.WarehouseRef, movement.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment stock")
		}
		return s.journal(ctx, repo, movement, movement.Quantity)
	})
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*models.StockLedgerEntry, error) {
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	movement := Movement{
		ProductRef:    input.ProductRef,
		WarehouseRef:  input.WarehouseRef,
		Quantity:      input.Delta,
		Reason:        enums.StockMovementAdjustment,
		ReferenceType: "adjustment",
	}
	var entry *models.StockLedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if input.Delta < 0 {
			movement.Quantity = -input.Delta
			err = s.Decrement(ctx, tx, movement)
		} else {
			err = s.Increment(ctx, tx, movement)
		}
		if err != nil {
			return err
		}
		entry, err = s.repo.WithTx(tx).Find(ctx, input.ProductRef, input.WarehouseRef)
		return err
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"product_ref":   input.ProductRef,
		"warehouse_ref": input.WarehouseRef,
		"delta":         input.Delta,
		"actor_ref":     input.ActorRef,
	})
	s.logg.Info(logCtx, "stock adjusted")
	return entry, nil
}

func (s *service) Get(ctx context.Context, productRef, warehouseRef string) (*models.StockLedgerEntry, error) {
	entry, err := s.repo.Find(ctx, productRef, warehouseRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger entry not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger entry")
	}
	return entry, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.StockLedgerEntry, error) {
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}
	return entries, nil
}

func (s *service) Total(ctx context.Context, productRef string) (int64, error) {
	if strings.TrimSpace(productRef) == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "product ref is required")
	}
	total, err := s.repo.SumByProduct(ctx, productRef)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum stock")
	}
	return total, nil
}

func (s *service) Movements(ctx context.Context, productRef, warehouseRef string, limit int) ([]models.StockMovement, error) {
	movements, err := s.repo.ListMovements(ctx, productRef, warehouseRef, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock movements")
	}
	return movements, nil
}

func (s *service) journal(ctx context.Context, repo Repository, movement Movement, delta int64) error {
	row := &models.StockMovement{
		ProductRef:    movement.ProductRef,
		WarehouseRef:  movement.WarehouseRef,
		Delta:         delta,
		Reason:        movement.Reason,
		ReferenceType: movement.ReferenceType,
		ReferenceID:   movement.ReferenceID,
	}
	if err := repo.InsertMovement(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stock movement")
	}
	return nil
}

func (s *service) inTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.tx.WithTx(ctx, fn)
}

func validateMovement(m Movement) error {
	if strings.TrimSpace(m.ProductRef) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product ref is required")
	}
	if strings.TrimSpace(m.WarehouseRef) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "warehouse ref is required")
	}
	if m.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if !m.Reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid movement reason %q", m.Reason))
	}
	return nil
}
