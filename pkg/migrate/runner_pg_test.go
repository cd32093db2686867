//go:build integration

package migrate

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestRunnerAppliesEmbeddedMigrations(t *testing.T) {
	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("commerce"),
		tcpostgres.WithUsername("commerce"),
		tcpostgres.WithPassword("commerce"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	runner, err := NewRunner(db, nil, nil)
	require.NoError(t, err)
	require.NoError(t, runner.Up(ctx))

	statuses, err := runner.Status(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	for _, st := range statuses {
		require.Equal(t, goose.StateApplied, st.State, st.Source.Path)
	}
	latest := statuses[len(statuses)-1].Source.Version

	_, err = db.ExecContext(ctx, `INSERT INTO stock_ledger_entries (product_ref, warehouse_ref, quantity) VALUES ('sku', 'wh', -1)`)
	require.Error(t, err, "non-negative check must hold")

	require.NoError(t, runner.Redo(ctx))
	version, err := runner.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, latest, version)

	require.NoError(t, runner.To(ctx, "20260902090000"))
	version, err = runner.Version(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 20260902090000, version)
}
