package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/commerce-core/pkg/logger"
)

const (
	outboxRetentionDays  = 30
	webhookRetentionDays = 90
	webhookDeleteBatch   = 1000
)

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type webhookPruner interface {
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type RetentionJobParams struct {
	Logger       *logger.Logger
	Outbox       outboxPruner
	Webhooks     webhookPruner
	OutboxDays   int
	WebhookDays  int
	WebhookBatch int
}

// NewOutboxRetentionJob deletes published outbox rows past the retention window.
func NewOutboxRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	days := params.OutboxDays
	if days <= 0 {
		days = outboxRetentionDays
	}
	return &outboxRetentionJob{logg: params.Logger, repo: params.Outbox, days: days, now: time.Now}, nil
}

type outboxRetentionJob struct {
	logg *logger.Logger
	repo outboxPruner
	days int
	now  func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.days)
	deleted, err := j.repo.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.days,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}

// NewWebhookRetentionJob deletes processed webhook rows in batches. Rows still
// inside the window keep deduplicating late provider retries.
func NewWebhookRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Webhooks == nil {
		return nil, fmt.Errorf("webhook repository required")
	}
	days := params.WebhookDays
	if days <= 0 {
		days = webhookRetentionDays
	}
	batch := params.WebhookBatch
	if batch <= 0 {
		batch = webhookDeleteBatch
	}
	return &webhookRetentionJob{logg: params.Logger, repo: params.Webhooks, days: days, batch: batch, now: time.Now}, nil
}

type webhookRetentionJob struct {
	logg  *logger.Logger
	repo  webhookPruner
	days  int
	batch int
	now   func() time.Time
}

func (j *webhookRetentionJob) Name() string { return "webhook-retention" }

func (j *webhookRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.days)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		deleted, err := j.repo.DeleteProcessedBefore(ctx, cutoff, j.batch)
		if err != nil {
			return fmt.Errorf("webhook retention: %w", err)
		}
		total += deleted
		if deleted < int64(j.batch) {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.days,
		"rows_deleted":   total,
	})
	j.logg.Info(logCtx, "webhook retention cleanup complete")
	return nil
}
