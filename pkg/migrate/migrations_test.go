package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"

	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/migrate"
)

func readMigrations(t *testing.T) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	var b strings.Builder
	for _, path := range matches {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		b.Write(data)
	}
	return b.String()
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	require.NoError(t, migrate.ValidateFS(migrate.Migrations()))

	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	embedded, err := fs.Glob(migrate.Migrations(), "*.sql")
	require.NoError(t, err)
	require.Len(t, embedded, len(onDisk))
}

func TestMigrationsCreateEveryModelTable(t *testing.T) {
	content := readMigrations(t)
	cache := &sync.Map{}
	for _, model := range models.All() {
		s, err := schema.Parse(model, cache, schema.NamingStrategy{})
		require.NoError(t, err)
		require.Contains(t, content, "CREATE TABLE IF NOT EXISTS "+s.Table+" (", "missing table %s", s.Table)
		require.Contains(t, content, "DROP TABLE IF EXISTS "+s.Table+";", "missing down for %s", s.Table)
	}
}

func TestMigrationsCarryLedgerConstraints(t *testing.T) {
	content := readMigrations(t)
	for _, sub := range []string{
		"CONSTRAINT chk_stock_ledger_non_negative CHECK (quantity >= 0)",
		"PRIMARY KEY (product_ref, warehouse_ref)",
		"CONSTRAINT chk_orders_refund_cap CHECK (refund_reserved_cents <= captured_cents)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_webhook_events_external",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_store_credit_entries_refund",
		"CONSTRAINT chk_stock_transfers_distinct CHECK (from_warehouse_ref <> to_warehouse_ref)",
	} {
		require.Contains(t, content, sub)
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Refund Notes!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_refund_notes.sql"), path)
	require.NoError(t, migrate.ValidateDir(dir))

	_, err = migrate.CreateSQLMigration(dir, "!!!")
	require.Error(t, err)
}

func TestValidateFSRejects(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {
			"001_init.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"duplicate version": {
			"20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"20260101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"missing down": {
			"20260101000000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		},
		"down before up": {
			"20260101000000_a.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")},
		},
		"unterminated block": {
			"20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n")},
		},
		"empty": {},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, migrate.ValidateFS(fsys))
		})
	}
}
