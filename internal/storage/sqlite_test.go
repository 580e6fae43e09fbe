package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_AppendAndLoad(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	first, err := store.Append(ctx, []byte(`{"__version":"10.2","userAgent":"UA-1","results":{}}`), t0)
	require.NoError(t, err)
	_, err = store.Append(ctx, []byte(`not json`), t0.Add(time.Hour))
	require.NoError(t, err)
	third, err := store.Append(ctx, []byte(`{"__version":"10.2","userAgent":"UA-2","results":{}}`), t0.Add(2*time.Hour))
	require.NoError(t, err)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, "UA-1", all[0].UserAgent)
	assert.Equal(t, "10.2", all[0].SchemaVersion)
	assert.Equal(t, t0, all[0].ReceivedAt)
	assert.Empty(t, all[1].UserAgent)
	assert.Equal(t, []byte("not json"), all[1].Payload)

	since, err := store.Since(ctx, t0.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, third.ID, since[0].ID)

	raw := since[0].Raw()
	assert.Equal(t, third.ID, raw.ID)
	assert.Equal(t, third.Payload, raw.Payload)
}

func TestSQLiteStore_AppendOnly(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, []byte(`{}`), time.Now())
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, `UPDATE reports SET payload = 'x'`)
	assert.Error(t, err)
}

func TestSQLiteStore_Runs(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordRun(ctx, Run{StartedAt: t0.Add(time.Minute), Sessions: 2, Features: 10}))
	require.NoError(t, store.RecordRun(ctx, Run{ID: "first", StartedAt: t0, Sessions: 1, Rejected: 1, Orphans: 3, Diagnostics: 4}))

	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "first", runs[0].ID)
	assert.Equal(t, 3, runs[0].Orphans)
	assert.Equal(t, 10, runs[1].Features)
	assert.NotEmpty(t, runs[1].ID)
}
