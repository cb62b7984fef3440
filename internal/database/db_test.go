package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, name string) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), name+".db"), Name: name})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNew_DefaultsToStandardProfile(t *testing.T) {
	db := newTestDB(t, "tender")

	assert.Equal(t, ProfileStandard, db.Profile())
	assert.Equal(t, "tender", db.Name())
	assert.True(t, filepath.IsAbs(db.Path()))

	var mode string
	require.NoError(t, db.Conn().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestBuildConnectionString(t *testing.T) {
	tests := []struct {
		profile  DatabaseProfile
		contains string
	}{
		{ProfileLedger, "synchronous(FULL)"},
		{ProfileCache, "synchronous(OFF)"},
		{ProfileStandard, "synchronous(NORMAL)"},
	}

	for _, tt := range tests {
		t.Run(string(tt.profile), func(t *testing.T) {
			connStr := buildConnectionString("/tmp/x.db", tt.profile)
			assert.Contains(t, connStr, "journal_mode(WAL)")
			assert.Contains(t, connStr, tt.contains)
			assert.Contains(t, connStr, "foreign_keys(1)")
		})
	}
}

func TestMigrate_CreatesTables(t *testing.T) {
	db := newTestDB(t, "tender")
	require.NoError(t, db.Migrate())
	// Idempotent
	require.NoError(t, db.Migrate())

	for _, table := range []string{"baseline_snapshots", "allocation_runs", "allocation_constraints"} {
		var name string
		err := db.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_UnknownNameIsNoop(t *testing.T) {
	db := newTestDB(t, "scratch")
	require.NoError(t, db.Migrate())

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table'").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithTransaction(t *testing.T) {
	db := newTestDB(t, "scratch")
	_, err := db.Conn().Exec("CREATE TABLE items (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	count := func() int {
		var n int
		require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM items").Scan(&n))
		return n
	}

	t.Run("commits on success", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			_, err := tx.Exec("INSERT INTO items (id) VALUES (1)")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		sentinel := errors.New("boom")
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			if _, err := tx.Exec("INSERT INTO items (id) VALUES (2)"); err != nil {
				return err
			}
			return sentinel
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, count())
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			_, _ = tx.Exec("INSERT INTO items (id) VALUES (3)")
			panic("unexpected")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panic in transaction")
		assert.Equal(t, 1, count())
	})

	t.Run("nil connection", func(t *testing.T) {
		err := WithTransaction(nil, func(tx *sql.Tx) error { return nil })
		assert.Error(t, err)
	})
}

func TestMaintenanceOperations(t *testing.T) {
	db := newTestDB(t, "tender")
	require.NoError(t, db.Migrate())

	ctx := context.Background()
	assert.NoError(t, db.HealthCheck(ctx))
	assert.NoError(t, db.WALCheckpoint(""))
	assert.NoError(t, db.WALCheckpoint("PASSIVE"))
	assert.Error(t, db.WALCheckpoint("DROP TABLE"))
	assert.NoError(t, db.Vacuum())

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageCount, int64(0))
	assert.Greater(t, stats.PageSize, int64(0))
}

func TestBackupTo(t *testing.T) {
	db := newTestDB(t, "tender")
	require.NoError(t, db.Migrate())
	_, err := db.Conn().Exec(`INSERT INTO baseline_snapshots (id, label, captured_at, group_count, unit_count, payload)
		VALUES ('b1', 'week 12', 1, 1, 3, x'00')`)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "backups", "copy.db")
	require.NoError(t, db.BackupTo(context.Background(), dest))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	copyDB, err := New(Config{Path: dest, Name: "copy"})
	require.NoError(t, err)
	defer copyDB.Close()

	var label string
	require.NoError(t, copyDB.Conn().QueryRow("SELECT label FROM baseline_snapshots WHERE id = 'b1'").Scan(&label))
	assert.Equal(t, "week 12", label)
}
