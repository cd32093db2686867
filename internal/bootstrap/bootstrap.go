// Package bootstrap builds the runtime every binary starts from: environment,
// config, logger, database and the optional dev migrations. Clients opened
// through a Runtime are closed by Runtime.Close in reverse order.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/commerce-core/pkg/config"
	"github.com/angelmondragon/commerce-core/pkg/db"
	"github.com/angelmondragon/commerce-core/pkg/logger"
	"github.com/angelmondragon/commerce-core/pkg/migrate"
	"github.com/angelmondragon/commerce-core/pkg/pubsub"
	"github.com/angelmondragon/commerce-core/pkg/redis"
	"github.com/angelmondragon/commerce-core/pkg/stripe"
)

type closer struct {
	name string
	fn   func() error
}

type Runtime struct {
	Service string
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client

	closers []closer
}

// Start loads .env and config, swaps the bootstrap logger for the configured
// one, connects to the database and runs dev migrations when enabled. Failures
// are logged before they are returned.
func Start(ctx context.Context, service string) (*Runtime, error) {
	logg := logger.Bootstrap(service)
	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		return nil, err
	}
	cfg.Service.Kind = service

	rt := &Runtime{Service: service, Config: cfg, Logger: logger.ForApp(service, cfg.App)}

	rt.DB, err = db.New(ctx, cfg.DB, cfg.FeatureFlags, rt.Logger)
	if err != nil {
		return nil, rt.fail(ctx, "failed to bootstrap database", err)
	}
	rt.onClose("database", rt.DB.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, rt.Logger, rt.DB); err != nil {
		return nil, rt.fail(ctx, "failed to run dev migrations", err)
	}
	return rt, nil
}

// Redis connects to Redis. It returns nil without error when no address is
// configured and optional is set.
func (rt *Runtime) Redis(ctx context.Context, optional bool) (*redis.Client, error) {
	rc := rt.Config.Redis
	if optional && rc.URL == "" && rc.Address == "" {
		return nil, nil
	}
	client, err := redis.New(ctx, rc, rt.Logger)
	if err != nil {
		return nil, rt.fail(ctx, "failed to bootstrap redis", err)
	}
	rt.onClose("redis", client.Close)
	return client, nil
}

// Stripe returns the raw client (webhook secrets) and the timeout-bounded
// gateway the refund orchestrator talks to.
func (rt *Runtime) Stripe(ctx context.Context) (*stripe.Client, *stripe.Gateway, error) {
	client, err := stripe.NewClient(ctx, rt.Config.Stripe, rt.Config.Gateway, rt.Logger)
	if err != nil {
		return nil, nil, rt.fail(ctx, "failed to bootstrap stripe", err)
	}
	gateway, err := stripe.NewGateway(client, rt.Config.Gateway.Timeout, rt.Logger)
	if err != nil {
		return nil, nil, rt.fail(ctx, "failed to create payment gateway", err)
	}
	return client, gateway, nil
}

func (rt *Runtime) PubSub(ctx context.Context) (*pubsub.Client, error) {
	client, err := pubsub.NewClient(ctx, rt.Config.GCP, rt.Config.PubSub, rt.Logger)
	if err != nil {
		return nil, rt.fail(ctx, "failed to bootstrap pubsub", err)
	}
	rt.onClose("pubsub", client.Close)
	return client, nil
}

// Close releases everything opened through rt, newest first.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	var errs error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if err := c.fn(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	rt.closers = nil
	if errs != nil {
		rt.Logger.Error(context.Background(), "error closing clients", errs)
	}
}

func (rt *Runtime) onClose(name string, fn func() error) {
	rt.closers = append(rt.closers, closer{name: name, fn: fn})
}

// fail logs msg, closes whatever was already opened and returns err.
func (rt *Runtime) fail(ctx context.Context, msg string, err error) error {
	rt.Logger.Error(ctx, msg, err)
	rt.Close()
	return err
}
