package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_AppliesPragmas(t *testing.T) {
	s := createTestStore(t)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.db")

	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.InsertEvent(context.Background(), createTestEvent("kept", nil))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	events, err := s2.ListEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "kept", events[0].Name)
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.True(t, IsOpenError(err))
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	require.Error(t, err)
	assert.True(t, IsOpenError(err))
}

func TestIDsNeverReused(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := s.InsertEvent(ctx, createTestEvent("a", nil))
	require.NoError(t, err)
	require.NoError(t, s.DeleteEvent(ctx, first))

	second, err := s.InsertEvent(ctx, createTestEvent("b", nil))
	require.NoError(t, err)
	assert.Greater(t, second.Seq, first.Seq)
}
