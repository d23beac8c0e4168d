package main

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XOOChatx/Chat-X/internal/migrations"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPendingMigrations(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	version, err := currentVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	all, err := migrations.Load()
	require.NoError(t, err)
	pending, err := pendingMigrations(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, all, pending)

	applied, err := migrations.Apply(ctx, db)
	require.NoError(t, err)

	version, err = currentVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, applied, version)

	pending, err = pendingMigrations(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
