package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	return db
}

func TestOpen_CreatesNestedDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nested", "journal.db")

	db, err := Open(Config{Path: path, BusyTimeout: 1})
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck // test cleanup

	assert.Equal(t, path, db.Path())
	_, err = db.ExecContext(context.Background(), "CREATE TABLE t (id INTEGER)")
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_WALMode(t *testing.T) {
	db := openTestDB(t)

	var mode string
	require.NoError(t, db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.HealthCheck(context.Background()))
}

func TestClose_Idempotent(t *testing.T) {
	var nilDB *DB
	assert.NoError(t, nilDB.Close())

	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	require.NoError(t, db.Close())
	assert.Error(t, db.HealthCheck(context.Background()))
}
