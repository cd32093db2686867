package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/commerce-core/internal/orders"
	"github.com/angelmondragon/commerce-core/pkg/db/models"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"github.com/angelmondragon/commerce-core/pkg/logger"
)

const (
	defaultOrderTTL  = 24 * time.Hour
	orderExpiryBatch = 200
)

type staleOrderLister interface {
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error)
}

type orderTransitioner interface {
	Transition(ctx context.Context, id uuid.UUID, event orders.Event, actor orders.Actor) (*models.Order, error)
}

type OrderExpiryJobParams struct {
	Logger  *logger.Logger
	Orders  staleOrderLister
	Machine orderTransitioner
	TTL     time.Duration
}

// NewOrderExpiryJob cancels checkouts that never received a payment event.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Machine == nil {
		return nil, fmt.Errorf("order service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultOrderTTL
	}
	return &orderExpiryJob{
		logg:    params.Logger,
		orders:  params.Orders,
		machine: params.Machine,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg    *logger.Logger
	orders  staleOrderLister
	machine orderTransitioner
	ttl     time.Duration
	now     func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	ids, err := j.orders.ListStalePending(ctx, cutoff, orderExpiryBatch)
	if err != nil {
		return fmt.Errorf("query stale orders: %w", err)
	}
	var errs error
	expired := 0
	for _, id := range ids {
		_, err := j.machine.Transition(ctx, id, orders.Event{Kind: orders.EventCancel}, orders.SystemActor)
		switch {
		case err == nil:
			expired++
		case pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition), pkgerrors.HasCode(err, pkgerrors.CodeConflict):
			// A payment event won the race.
		default:
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", id, err))
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"cutoff": cutoff, "candidates": len(ids), "expired": expired})
	j.logg.Info(logCtx, "stale order expiry complete")
	return errs
}
