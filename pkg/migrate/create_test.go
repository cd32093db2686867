package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateSQLMigrationRefusesOutOfOrderVersion(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)

	first, err := createSQLMigration(dir, "create orders", now)
	require.NoError(t, err)
	require.Equal(t, "20260902090000_create_orders.sql", filepath.Base(first))

	_, err = createSQLMigration(dir, "earlier", now.Add(-time.Hour))
	require.ErrorContains(t, err, "does not sort after")

	_, err = createSQLMigration(dir, "same second", now)
	require.Error(t, err)

	second, err := createSQLMigration(dir, "add refund notes", now.Add(time.Second))
	require.NoError(t, err)
	body, err := os.ReadFile(second)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(body), annotationUp))
	require.NoError(t, ValidateDir(dir))
}

func TestSanitizeMigrationName(t *testing.T) {
	require.Equal(t, "add_refund_notes", sanitizeMigrationName("  Add Refund-Notes! "))
	require.Empty(t, sanitizeMigrationName("!!!"))
}
