// Package storagetest provides migrated throwaway databases for package tests.
package storagetest

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/formulafinance/licensehub/pkg/storage"
)

// NewSQLiteDB returns a migrated SQLite database backed by a file in t.TempDir().
// BEGIN IMMEDIATE is used for every transaction so concurrent writers queue
// on the database lock instead of failing with SQLITE_BUSY on upgrade.
func NewSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "licensehub_test.db")
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=10000&_txlock=immediate", path)

	db, err := sql.Open(storage.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.Migrate(context.Background(), db, storage.DriverSQLite))
	return db
}

// NewSQLiteManager wraps NewSQLiteDB in a ConnectionManager
func NewSQLiteManager(t *testing.T) *storage.ConnectionManager {
	t.Helper()
	return storage.NewConnectionManagerFromDB(NewSQLiteDB(t), storage.DriverSQLite)
}
