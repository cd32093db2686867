package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/commerce-core/internal/app"
	"github.com/angelmondragon/commerce-core/internal/bootstrap"
	"github.com/angelmondragon/commerce-core/internal/cron"
	"github.com/angelmondragon/commerce-core/pkg/config"
	"github.com/angelmondragon/commerce-core/pkg/logger"
	"github.com/angelmondragon/commerce-core/pkg/metrics"
)

func main() {
	rt, err := bootstrap.Start(context.Background(), "cron-worker")
	if err != nil {
		os.Exit(1)
	}
	if err := run(rt); err != nil {
		rt.Close()
		os.Exit(1)
	}
	rt.Close()
}

func run(rt *bootstrap.Runtime) error {
	ctx := context.Background()
	cfg, logg := rt.Config, rt.Logger

	// The cron lease lives in Redis, so unlike the API it is mandatory here.
	redisClient, err := rt.Redis(ctx, false)
	if err != nil {
		return err
	}
	_, gateway, err := rt.Stripe(ctx)
	if err != nil {
		return err
	}

	core, err := app.NewCore(app.CoreParams{
		DB:      rt.DB.DB(),
		Tx:      rt.DB,
		Gateway: gateway,
		Logger:  logg,
		Metrics: metrics.NewCommerceMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(ctx, "failed to assemble services", err)
		return err
	}

	registry, err := buildRegistry(cfg, logg, core)
	if err != nil {
		logg.Error(ctx, "failed to register cron jobs", err)
		return err
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(rt.Service), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "interval", cfg.Cron.Interval.String())
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, core *app.Core) (*cron.Registry, error) {
	refundParams := cron.RefundJobParams{
		Logger:  logg,
		Refunds: core.Refunds,
		Grace:   cfg.Cron.PendingRefundAge,
		Batch:   cfg.Cron.RefundBatchSize,
	}
	retentionParams := cron.RetentionJobParams{
		Logger:      logg,
		Outbox:      core.OutboxRepo,
		Webhooks:    core.WebhookRepo,
		OutboxDays:  cfg.Outbox.RetentionDays,
		WebhookDays: cfg.Webhooks.RetentionDays,
	}

	pending, err := cron.NewPendingRefundsJob(refundParams)
	if err != nil {
		return nil, err
	}
	compensation, err := cron.NewRefundCompensationJob(cron.RefundJobParams{
		Logger:  logg,
		Refunds: core.Refunds,
		Batch:   cfg.Cron.CompensationLimit,
	})
	if err != nil {
		return nil, err
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(retentionParams)
	if err != nil {
		return nil, err
	}
	webhookRetention, err := cron.NewWebhookRetentionJob(retentionParams)
	if err != nil {
		return nil, err
	}
	expiry, err := cron.NewOrderExpiryJob(cron.OrderExpiryJobParams{
		Logger:  logg,
		Orders:  core.OrderRepo,
		Machine: core.Orders,
		TTL:     cfg.Cron.PendingOrderTTL,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	for _, job := range []cron.Job{pending, compensation, expiry, outboxRetention, webhookRetention} {
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	if err := registry.Disable(cfg.Cron.DisabledJobs...); err != nil {
		return nil, err
	}
	if len(cfg.Cron.DisabledJobs) > 0 {
		logg.Warn(logg.WithField(context.Background(), "disabled_jobs", cfg.Cron.DisabledJobs), "some cron jobs are disabled")
	}
	return registry, nil
}
