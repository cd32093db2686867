package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/commerce-core/api/routes"
	"github.com/angelmondragon/commerce-core/internal/app"
	"github.com/angelmondragon/commerce-core/internal/bootstrap"
	stripewebhook "github.com/angelmondragon/commerce-core/internal/webhooks/stripe"
	"github.com/angelmondragon/commerce-core/pkg/config"
	"github.com/angelmondragon/commerce-core/pkg/idempotency"
	"github.com/angelmondragon/commerce-core/pkg/logger"
	"github.com/angelmondragon/commerce-core/pkg/metrics"
)

const shutdownTimeout = 15 * time.Second

func main() {
	rt, err := bootstrap.Start(context.Background(), "api")
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

	stripeClient, gateway, err := rt.Stripe(ctx)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	coreParams := app.CoreParams{
		DB:      rt.DB.DB(),
		Tx:      rt.DB,
		Gateway: gateway,
		Logger:  logg,
		Metrics: metrics.NewCommerceMetrics(registry),
	}
	infra := routes.Infra{
		DB:       rt.DB,
		Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Requests: metrics.NewHTTPMetrics(registry),
	}

	// Redis only backs fast paths; the API keeps serving without it.
	redisClient, err := rt.Redis(ctx, true)
	if err != nil {
		return err
	}
	if redisClient != nil {
		seen, err := idempotency.NewSeenSet(redisClient, cfg.Webhooks.SeenTTL)
		if err != nil {
			logg.Error(ctx, "failed to create webhook cache", err)
			return err
		}
		coreParams.WebhookCache = seen
		infra.Redis = redisClient
		infra.Idempotency = redisClient
	} else {
		logg.Warn(ctx, "redis not configured, idempotency keys and webhook fast path disabled")
	}

	core, err := app.NewCore(coreParams)
	if err != nil {
		logg.Error(ctx, "failed to assemble services", err)
		return err
	}
	stripeWebhooks, err := stripewebhook.NewService(stripewebhook.ServiceParams{Reconciler: core.Webhooks})
	if err != nil {
		logg.Error(ctx, "failed to create stripe webhook service", err)
		return err
	}

	handler, err := routes.NewRouter(cfg, logg, routes.Services{
		Orders:         core.Orders,
		Refunds:        core.Refunds,
		Transfers:      core.Transfers,
		Ledger:         core.Ledger,
		StripeWebhooks: stripeWebhooks,
		StripeSigner:   stripeClient,
	}, infra)
	if err != nil {
		logg.Error(ctx, "failed to build router", err)
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, logg, listenAddr(cfg), handler)
}

// listenAddr prefers the platform-injected PORT over the configured one.
func listenAddr(cfg *config.Config) string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":" + cfg.App.Port
}

func serve(ctx context.Context, logg *logger.Logger, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx = logg.WithField(ctx, "addr", addr)
	logg.Info(ctx, "starting api server")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		return err
	}
	logg.Info(ctx, "api server shut down gracefully")
	return nil
}
