package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWithMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := OpenWithMigrations(dbPath, nil)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"schema_migrations", "suppliers", "system_settings", "products", "search_jobs"} {
		var n int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "table %s should exist", table)
	}

	var resultsPerSite, timeoutMS, retries int
	err = db.QueryRow("SELECT results_per_site, search_timeout_ms, max_retries FROM system_settings WHERE id = 1").
		Scan(&resultsPerSite, &timeoutMS, &retries)
	require.NoError(t, err)
	assert.Equal(t, 1, resultsPerSite)
	assert.Equal(t, 30000, timeoutMS)
	assert.Equal(t, 2, retries)
}

func TestMigrate(t *testing.T) {
	t.Run("is idempotent", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))
		require.NoError(t, Migrate(db, nil), "running migrations multiple times should be safe")

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
		assert.Equal(t, 5, count)
	})

	t.Run("fails on closed database", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		db.Close()

		assert.Error(t, Migrate(db, nil))
	})

	t.Run("product names are unique per supplier", func(t *testing.T) {
		db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = db.Exec(`INSERT INTO suppliers (name, url) VALUES ('A', 'https://a.example/*')`)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO products (supplier_id, name, name_key) VALUES (1, 'Cabo HDMI', 'cabo hdmi')`)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO products (supplier_id, name, name_key) VALUES (1, 'cabo hdmi ', 'cabo hdmi')`)
		assert.Error(t, err)
	})
}
