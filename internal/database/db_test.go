package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T, name string, profile DatabaseProfile) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *DB, table string) bool {
	t.Helper()
	var count int
	err := db.Conn().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
	).Scan(&count)
	require.NoError(t, err)
	return count == 1
}

func TestMigrate_AppliesNamedSchema(t *testing.T) {
	tests := []struct {
		name   string
		tables []string
	}{
		{NameLedger, []string{"transactions", "stored_prices", "stored_fx_rates"}},
		{NameCache, []string{"performance_snapshots"}},
		{NameClientData, []string{"alphavantage_daily", "alphavantage_fx", "exchangerate", "prices"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newDB(t, tt.name, ProfileStandard)
			require.NoError(t, db.Migrate())
			// Second run is a no-op
			require.NoError(t, db.Migrate())

			for _, table := range tt.tables {
				assert.True(t, tableExists(t, db, table), "missing table %s", table)
			}
		})
	}
}

func TestMigrate_UnknownNameLeavesDatabaseEmpty(t *testing.T) {
	db := newDB(t, "scratch", ProfileStandard)
	require.NoError(t, db.Migrate())
	assert.False(t, tableExists(t, db, "transactions"))
}

func TestBuildConnectionString_Profiles(t *testing.T) {
	assert.Contains(t, buildConnectionString("a.db", ProfileLedger), "synchronous(FULL)")
	assert.Contains(t, buildConnectionString("a.db", ProfileCache), "synchronous(OFF)")
	assert.Contains(t, buildConnectionString("a.db", ProfileStandard), "synchronous(NORMAL)")
	assert.Contains(t, buildConnectionString("a.db", ProfileCache), "journal_mode(WAL)")
}

func TestWithTransaction(t *testing.T) {
	db := newDB(t, "tx", ProfileStandard)
	_, err := db.Conn().Exec("CREATE TABLE items (name TEXT NOT NULL)")
	require.NoError(t, err)

	count := func() int {
		var n int
		require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM items").Scan(&n))
		return n
	}

	t.Run("commits", func(t *testing.T) {
		err := WithTransaction(context.Background(), db.Conn(), func(tx *sql.Tx) error {
			_, err := tx.Exec("INSERT INTO items (name) VALUES ('a')")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := WithTransaction(context.Background(), db.Conn(), func(tx *sql.Tx) error {
			if _, err := tx.Exec("INSERT INTO items (name) VALUES ('b')"); err != nil {
				return err
			}
			return boom
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, count())
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		err := WithTransaction(context.Background(), db.Conn(), func(tx *sql.Tx) error {
			_, _ = tx.Exec("INSERT INTO items (name) VALUES ('c')")
			panic("kaboom")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kaboom")
		assert.Equal(t, 1, count())
	})

	t.Run("nil connection", func(t *testing.T) {
		err := WithTransaction(context.Background(), nil, func(tx *sql.Tx) error { return nil })
		assert.Error(t, err)
	})
}

func TestWALCheckpoint(t *testing.T) {
	db := newDB(t, NameCache, ProfileCache)
	require.NoError(t, db.Migrate())

	assert.NoError(t, db.WALCheckpoint(context.Background(), ""))
	assert.NoError(t, db.WALCheckpoint(context.Background(), "passive"))
	assert.Error(t, db.WALCheckpoint(context.Background(), "sideways"))
}

func TestHealthCheckAndStats(t *testing.T) {
	db := newDB(t, NameLedger, ProfileLedger)
	require.NoError(t, db.Migrate())

	require.NoError(t, db.HealthCheck(context.Background()))

	stats, err := db.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NameLedger, stats.Name)
	assert.Positive(t, stats.PageCount)
	assert.Positive(t, stats.PageSize)
}
