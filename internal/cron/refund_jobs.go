package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/commerce-core/pkg/logger"
)

const (
	defaultRefundGrace = 2 * time.Minute
	defaultRefundBatch = 50
)

type refundWorker interface {
	ProcessPending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
	Compensate(ctx context.Context, limit int) (int, error)
}

type RefundJobParams struct {
	Logger  *logger.Logger
	Refunds refundWorker
	// Grace leaves freshly scheduled refunds to the request that created them.
	Grace time.Duration
	Batch int
}

func (p RefundJobParams) validate() error {
	if p.Logger == nil {
		return fmt.Errorf("logger required")
	}
	if p.Refunds == nil {
		return fmt.Errorf("refund service required")
	}
	return nil
}

func (p RefundJobParams) batch() int {
	if p.Batch <= 0 {
		return defaultRefundBatch
	}
	return p.Batch
}

// NewPendingRefundsJob retries PENDING refunds left by gateway timeouts or by
// cancellation and stock-conflict transitions.
func NewPendingRefundsJob(params RefundJobParams) (Job, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultRefundGrace
	}
	return &pendingRefundsJob{logg: params.Logger, refunds: params.Refunds, grace: grace, batch: params.batch()}, nil
}

type pendingRefundsJob struct {
	logg    *logger.Logger
	refunds refundWorker
	grace   time.Duration
	batch   int
}

func (j *pendingRefundsJob) Name() string { return "pending-refunds" }

func (j *pendingRefundsJob) Run(ctx context.Context) error {
	processed, err := j.refunds.ProcessPending(ctx, j.grace, j.batch)
	logCtx := j.logg.WithField(ctx, "refunds_finalized", processed)
	if err != nil {
		return fmt.Errorf("process pending refunds: %w", err)
	}
	j.logg.Info(logCtx, "pending refunds processed")
	return nil
}

// NewRefundCompensationJob schedules fresh refunds for stock-conflicted and
// cancelled orders whose captured funds are unclaimed.
func NewRefundCompensationJob(params RefundJobParams) (Job, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &refundCompensationJob{logg: params.Logger, refunds: params.Refunds, batch: params.batch()}, nil
}

type refundCompensationJob struct {
	logg    *logger.Logger
	refunds refundWorker
	batch   int
}

func (j *refundCompensationJob) Name() string { return "refund-compensation" }

func (j *refundCompensationJob) Run(ctx context.Context) error {
	scheduled, err := j.refunds.Compensate(ctx, j.batch)
	if scheduled > 0 {
		j.logg.Warn(j.logg.WithField(ctx, "refunds_scheduled", scheduled), "compensating refunds scheduled")
	}
	if err != nil {
		return fmt.Errorf("refund compensation: %w", err)
	}
	return nil
}
