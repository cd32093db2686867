package transfers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/commerce-core/internal/ledger"
	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"github.com/angelmondragon/commerce-core/pkg/logger"
	"github.com/angelmondragon/commerce-core/pkg/outbox"
	"github.com/angelmondragon/commerce-core/pkg/outbox/payloads"
	"github.com/angelmondragon/commerce-core/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const referenceType = "stock_transfer"

// Service drives the REQUESTED -> APPROVED -> COMPLETED workflow and its
// cancellation branch. Source stock is reserved at creation, so the total for a
// product across warehouses never changes over a transfer's life.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.StockTransfer, error)
	Approve(ctx context.Context, id uuid.UUID, actor Actor) (*models.StockTransfer, error)
	Complete(ctx context.Context, id uuid.UUID, actor Actor) (*models.StockTransfer, error)
	Cancel(ctx context.Context, id uuid.UUID, actor Actor) (*models.StockTransfer, error)
	Get(ctx context.Context, id uuid.UUID) (*models.StockTransfer, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) (pagination.Page[models.StockTransfer], error)
}

// Actor identifies the staff member acting on a transfer.
type Actor struct {
	Ref  string
	Role enums.ActorRole
}

// CreateInput describes a transfer request.
type CreateInput struct {
	ProductRef       string
	FromWarehouseRef string
	ToWarehouseRef   string
	Quantity         int64
	Notes            *string
	Actor            Actor
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo   Repository
	Ledger ledger.Service
	Tx     txRunner
	Outbox outbox.Emitter
	Logger *logger.Logger
	Clock  func() time.Time
}

type service struct {
	repo   Repository
	ledger ledger.Service
	tx     txRunner
	outbox outbox.Emitter
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("transfer repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:   params.Repo,
		ledger: params.Ledger,
		tx:     params.Tx,
		outbox: params.Outbox,
		logg:   logg,
		now:    clock,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.StockTransfer, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	transfer := &models.StockTransfer{
		ID:               uuid.New(),
		ProductRef:       input.ProductRef,
		FromWarehouseRef: input.FromWarehouseRef,
		ToWarehouseRef:   input.ToWarehouseRef,
		Quantity:         input.Quantity,
		Status:           enums.TransferStatusRequested,
		RequestedBy:      input.Actor.Ref,
		Notes:            input.Notes,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.ledger.Decrement(ctx, tx, ledger.Movement{
			ProductRef:    transfer.ProductRef,
			WarehouseRef:  transfer.FromWarehouseRef,
			Quantity:      transfer.Quantity,
			Reason:        enums.StockMovementTransferReserve,
			ReferenceType: referenceType,
			ReferenceID:   &transfer.ID,
		}); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Create(ctx, transfer); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stock transfer")
		}
		return s.emit(ctx, tx, enums.EventTransferRequested, transfer, input.Actor)
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, transfer, "stock transfer requested")
	return transfer, nil
}

func (s *service) Approve(ctx context.Context, id uuid.UUID, actor Actor) (*models.StockTransfer, error) {
	now := s.now().UTC()
	return s.finalize(ctx, id, actor, transition{
		from:  []enums.TransferStatus{enums.TransferStatusRequested},
		to:    enums.TransferStatusApproved,
		event: enums.EventTransferApproved,
		fields: map[string]any{
			"approved_by": actor.Ref,
			"approved_at": now,
		},
	})
}

func (s *service) Complete(ctx context.Context, id uuid.UUID, actor Actor) (*models.StockTransfer, error) {
	now := s.now().UTC()
	return s.finalize(ctx, id, actor, transition{
		from:  []enums.TransferStatus{enums.TransferStatusApproved},
		to:    enums.TransferStatusCompleted,
		event: enums.EventTransferCompleted,
		fields: map[string]any{
			"finalized_by": actor.Ref,
			"completed_at": now,
		},
		effect: func(ctx context.Context, tx *gorm.DB, transfer *models.StockTransfer) error {
			return s.ledger.Increment(ctx, tx, ledger.Movement{
				ProductRef:    transfer.ProductRef,
				WarehouseRef:  transfer.ToWarehouseRef,
				Quantity:      transfer.Quantity,
				Reason:        enums.StockMovementTransferCredit,
				ReferenceType: referenceType,
				ReferenceID:   &transfer.ID,
			})
		},
	})
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID, actor Actor) (*models.StockTransfer, error) {
	now := s.now().UTC()
	return s.finalize(ctx, id, actor, transition{
		from:  []enums.TransferStatus{enums.TransferStatusRequested, enums.TransferStatusApproved},
		to:    enums.TransferStatusCancelled,
		event: enums.EventTransferCancelled,
		fields: map[string]any{
			"finalized_by": actor.Ref,
			"cancelled_at": now,
		},
		effect: func(ctx context.Context, tx *gorm.DB, transfer *models.StockTransfer) error {
			return s.ledger.Increment(ctx, tx, ledger.Movement{
				ProductRef:    transfer.ProductRef,
				WarehouseRef:  transfer.FromWarehouseRef,
				Quantity:      transfer.Quantity,
				Reason:        enums.StockMovementTransferRelease,
				ReferenceType: referenceType,
				ReferenceID:   &transfer.ID,
			})
		},
	})
}

type transition struct {
	from   []enums.TransferStatus
	to     enums.TransferStatus
	event  enums.OutboxEventType
	fields map[string]any
	effect func(ctx context.Context, tx *gorm.DB, transfer *models.StockTransfer) error
}

// finalize flips the status with a conditional update and only then touches the
// ledger, so a losing racer never mutates stock.
func (s *service) finalize(ctx context.Context, id uuid.UUID, actor Actor, t transition) (*models.StockTransfer, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer id is required")
	}
	if strings.TrimSpace(actor.Ref) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required")
	}
	var updated *models.StockTransfer
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		flipped, err := repo.UpdateStatusIf(ctx, id, t.from, t.to, t.fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stock transfer")
		}
		current, err := repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "stock transfer not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock transfer")
		}
		if !flipped {
			return rejectTransition(current, t.to)
		}
		if t.effect != nil {
			if err := t.effect(ctx, tx, current); err != nil {
				return err
			}
		}
		updated = current
		return s.emit(ctx, tx, t.event, current, actor)
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, updated, "stock transfer "+strings.ToLower(string(t.to)))
	return updated, nil
}

func rejectTransition(current *models.StockTransfer, target enums.TransferStatus) error {
	details := map[string]any{
		"transfer_id": current.ID.String(),
		"status":      current.Status,
		"requested":   target,
	}
	if current.Status.IsFinal() {
		return pkgerrors.New(pkgerrors.CodeAlreadyFinalized, "stock transfer already finalized").WithDetails(details)
	}
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("cannot move transfer from %s to %s", current.Status, target)).WithDetails(details)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.StockTransfer, error) {
	transfer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stock transfer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock transfer")
	}
	return transfer, nil
}

func (s *service) List(ctx context.Context, filter ListFilter, params pagination.Params) (pagination.Page[models.StockTransfer], error) {
	page, err := s.repo.List(ctx, filter, params)
	switch {
	case errors.Is(err, pagination.ErrInvalidCursor):
		return page, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor").WithDetail("field", "cursor")
	case err != nil:
		return page, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock transfers")
	}
	return page, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, transfer *models.StockTransfer, actor Actor) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateStockTransfer,
		AggregateID:   transfer.ID,
		Actor:         outbox.NewActorRef(actor.Ref, actor.Role),
		Data: payloads.TransferEvent{
			TransferID:       transfer.ID,
			ProductRef:       transfer.ProductRef,
			FromWarehouseRef: transfer.FromWarehouseRef,
			ToWarehouseRef:   transfer.ToWarehouseRef,
			Quantity:         transfer.Quantity,
			Status:           transfer.Status,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit transfer event")
	}
	return nil
}

func (s *service) logTransition(ctx context.Context, transfer *models.StockTransfer, msg string) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"transfer_id": transfer.ID.String(),
		"product_ref": transfer.ProductRef,
		"from":        transfer.FromWarehouseRef,
		"to":          transfer.ToWarehouseRef,
		"quantity":    transfer.Quantity,
		"status":      transfer.Status,
	})
	s.logg.Info(logCtx, msg)
}

func validateCreate(input CreateInput) error {
	switch {
	case strings.TrimSpace(input.ProductRef) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "product ref is required")
	case strings.TrimSpace(input.FromWarehouseRef) == "" || strings.TrimSpace(input.ToWarehouseRef) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "source and destination warehouses are required")
	case input.FromWarehouseRef == input.ToWarehouseRef:
		return pkgerrors.New(pkgerrors.CodeValidation, "source and destination warehouses must differ")
	case input.Quantity <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	case strings.TrimSpace(input.Actor.Ref) == "":
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required")
	}
	return nil
}
