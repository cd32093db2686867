package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/commerce-core/pkg/config"
	"github.com/angelmondragon/commerce-core/pkg/logger"
)

type ledgerRow struct {
	ProductRef   string `gorm:"primaryKey"`
	WarehouseRef string `gorm:"primaryKey"`
	Quantity     int64
}

func newSQLiteClient(t *testing.T, cfg config.DBConfig, logg *logger.Logger) *Client {
	t.Helper()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "commerce.db")
	client, err := New(context.Background(), cfg, config.FeatureFlagsConfig{UseSQLite: true}, logg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.DB().AutoMigrate(&ledgerRow{}))
	return client
}

func countRows(t *testing.T, client *Client) int64 {
	t.Helper()
	var count int64
	require.NoError(t, client.DB().Model(&ledgerRow{}).Count(&count).Error)
	return count
}

func TestNewSQLiteUsesSingleConnection(t *testing.T) {
	client := newSQLiteClient(t, config.DBConfig{MaxOpenConns: 20}, nil)
	sqlDB, err := client.DB().DB()
	require.NoError(t, err)
	require.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	require.NoError(t, client.Ping(context.Background()))
}

func TestNewRequiresPostgresDSN(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{}, config.FeatureFlagsConfig{}, nil)
	require.ErrorIs(t, err, errDSNRequired)
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	client := newSQLiteClient(t, config.DBConfig{}, nil)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{ProductRef: "sku-1", WarehouseRef: "wh-a", Quantity: 5}).Error
	}))
	require.EqualValues(t, 1, countRows(t, client))

	boom := errors.New("insufficient stock")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&ledgerRow{ProductRef: "sku-2", WarehouseRef: "wh-a", Quantity: 1}).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 1, countRows(t, client))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	client := newSQLiteClient(t, config.DBConfig{}, nil)

	require.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&ledgerRow{ProductRef: "sku-1", WarehouseRef: "wh-a"}).Error)
			panic("mid-transaction")
		})
	})
	require.Zero(t, countRows(t, client))
}

func TestWithTxRerunsSerializationFailures(t *testing.T) {
	client := newSQLiteClient(t, config.DBConfig{TxAttempts: 3}, nil)
	ctx := context.Background()

	runs := 0
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		runs++
		if err := tx.Create(&ledgerRow{ProductRef: "sku-1", WarehouseRef: "wh-a", Quantity: 2}).Error; err != nil {
			return err
		}
		if runs == 1 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, runs)
	require.EqualValues(t, 1, countRows(t, client))

	runs = 0
	err = client.WithTx(ctx, func(*gorm.DB) error {
		runs++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.True(t, IsRetryableTx(err))
	require.Equal(t, 3, runs)
}

func TestWithTxSurfacesUniqueViolation(t *testing.T) {
	client := newSQLiteClient(t, config.DBConfig{}, nil)
	ctx := context.Background()
	row := ledgerRow{ProductRef: "sku-1", WarehouseRef: "wh-a"}
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error { return tx.Create(&row).Error }))

	err := client.WithTx(ctx, func(tx *gorm.DB) error { return tx.Create(&row).Error })
	require.True(t, IsUniqueViolation(err, ""))
}

func TestSlowQueriesAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Level: zerolog.WarnLevel, Output: &buf})
	client := newSQLiteClient(t, config.DBConfig{SlowQueryThreshold: time.Nanosecond}, logg)
	buf.Reset()

	require.EqualValues(t, 0, countRows(t, client))

	var line map[string]any
	require.NoError(t, json.NewDecoder(&buf).Decode(&line))
	require.Equal(t, "gorm", line["component"])
	require.Equal(t, "warn", line["level"])
}
