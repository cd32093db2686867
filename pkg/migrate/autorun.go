package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/commerce-core/pkg/config"
	"github.com/angelmondragon/commerce-core/pkg/db"
	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/logger"
)

// MaybeRunDev brings a dev database up to date at boot when
// COMMERCE_AUTO_MIGRATE is set, and is a no-op everywhere else. Postgres runs
// the embedded goose set under an advisory lock; SQLite is built from the
// models because the SQL files are Postgres-only.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if cfg.FeatureFlags.UseSQLite {
		return syncSQLite(ctx, logg, client)
	}
	return upPostgres(ctx, logg, client)
}

func syncSQLite(ctx context.Context, logg *logger.Logger, client *db.Client) error {
	all := models.All()
	if err := client.DB().WithContext(ctx).AutoMigrate(all...); err != nil {
		return fmt.Errorf("sqlite auto-migrate: %w", err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"driver": "sqlite",
		"tables": len(all),
	}), "schema synced from models")
	return nil
}

func upPostgres(ctx context.Context, logg *logger.Logger, client *db.Client) error {
	pool, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	runner, err := NewRunner(pool, nil, logg, WithSessionLock())
	if err != nil {
		return err
	}
	if err := runner.Up(ctx); err != nil {
		return err
	}
	version, err := runner.Version(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"driver":         "postgres",
		"schema_version": version,
	}), "dev migrations applied")
	return nil
}
