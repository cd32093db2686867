package warehouses

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/commerce-core/pkg/db/models"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"gorm.io/gorm"
)

// Resolver picks the warehouse a seller fulfills from. Order capture consumes it.
type Resolver interface {
	Resolve(ctx context.Context, tx *gorm.DB, sellerRef string) (string, error)
}

// Service manages seller warehouse assignments.
type Service interface {
	Resolver
	Assign(ctx context.Context, input AssignInput) (*models.SellerWarehouse, error)
	List(ctx context.Context, sellerRef string) ([]models.SellerWarehouse, error)
}

// DefaultPriority applies when an assignment leaves Priority unset.
const DefaultPriority = 100

// AssignInput links a seller to a warehouse. Lower priority wins among non-defaults.
type AssignInput struct {
	SellerRef    string
	WarehouseRef string
	IsDefault    bool
	Priority     int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo Repository
	tx   txRunner
}

func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("warehouse repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) Resolve(ctx context.Context, tx *gorm.DB, sellerRef string) (string, error) {
	if strings.TrimSpace(sellerRef) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "seller ref is required")
	}
	assignment, err := s.repo.WithTx(tx).FindPreferred(ctx, sellerRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", pkgerrors.New(pkgerrors.CodeNotFound, "seller has no fulfillment warehouse").
				WithDetails(map[string]any{"seller_ref": sellerRef})
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve fulfillment warehouse")
	}
	return assignment.WarehouseRef, nil
}

func (s *service) Assign(ctx context.Context, input AssignInput) (*models.SellerWarehouse, error) {
	if strings.TrimSpace(input.SellerRef) == "" || strings.TrimSpace(input.WarehouseRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller ref and warehouse ref are required")
	}
	if input.Priority < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "priority must be non-negative")
	}
	priority := input.Priority
	if priority == 0 {
		priority = DefaultPriority
	}
	var assignment *models.SellerWarehouse
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if input.IsDefault {
			if err := repo.ClearDefault(ctx, input.SellerRef); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default warehouse")
			}
		}
		row := &models.SellerWarehouse{
			SellerRef:    input.SellerRef,
			WarehouseRef: input.WarehouseRef,
			IsDefault:    input.IsDefault,
			Priority:     priority,
		}
		if err := repo.Upsert(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign warehouse")
		}
		stored, err := repo.Find(ctx, input.SellerRef, input.WarehouseRef)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload warehouse assignment")
		}
		assignment = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

func (s *service) List(ctx context.Context, sellerRef string) ([]models.SellerWarehouse, error) {
	rows, err := s.repo.ListBySeller(ctx, sellerRef)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list seller warehouses")
	}
	return rows, nil
}
