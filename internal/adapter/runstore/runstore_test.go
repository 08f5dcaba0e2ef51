package runstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func snapshot(id string, finished time.Time) domain.RunSnapshot {
	return domain.RunSnapshot{
		ID:           id,
		WorkflowType: "documentation",
		Status:       domain.WorkflowCompleted,
		Progress: domain.Progress{
			Status:         domain.WorkflowCompleted,
			CurrentStep:    2,
			TotalSteps:     2,
			CompletedSteps: []string{"a", "b"},
		},
		Steps: []domain.StepOutput{
			{Name: "a", Result: domain.TaskResult{"repo": "x"}},
			{Name: "b", Result: domain.TaskResult{"pr_url": "https://example.com/pull/1"}},
		},
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	require.NoError(t, store.SaveRun(ctx, snapshot("r1", now)))

	got, err := store.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "documentation", got.WorkflowType)
	assert.Equal(t, domain.WorkflowCompleted, got.Status)
	assert.Equal(t, []string{"a", "b"}, got.Progress.CompletedSteps)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "https://example.com/pull/1", got.Steps[1].Result.String("pr_url"))
	assert.True(t, now.Equal(got.FinishedAt))
}

func TestSQLiteStore_SaveOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.SaveRun(ctx, snapshot("r1", now)))
	snap := snapshot("r1", now)
	snap.Status = domain.WorkflowFailed
	snap.Error = "boom"
	require.NoError(t, store.SaveRun(ctx, snap))

	got, err := store.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}

func TestSQLiteStore_Missing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.DeleteRun(ctx, "nope"), domain.ErrNotFound)
}

func TestSQLiteStore_ListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, store.SaveRun(ctx, snapshot(id, base.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "old", runs[2].ID)

	runs, err = store.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSQLiteStore_DeleteAndPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveRun(ctx, snapshot("a", base)))
	require.NoError(t, store.SaveRun(ctx, snapshot("b", base.Add(2*time.Hour))))
	require.NoError(t, store.SaveRun(ctx, snapshot("c", base.Add(3*time.Hour))))

	require.NoError(t, store.DeleteRun(ctx, "c"))

	n, err := store.Prune(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "b", runs[0].ID)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	store, closeFn, err := Open(config.StoreConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.Nil(t, store)
	assert.NoError(t, closeFn())

	store, closeFn, err = Open(config.StoreConfig{Backend: "file", Path: filepath.Join(dir, "file", "runs.db")})
	require.NoError(t, err)
	require.NotNil(t, store)
	require.NoError(t, store.SaveRun(context.Background(), snapshot("f", time.Now())))
	assert.FileExists(t, filepath.Join(dir, "file", "runs.json"))
	assert.NoError(t, closeFn())

	store, closeFn, err = Open(config.StoreConfig{Backend: "sqlite", Path: filepath.Join(dir, "sql", "runs.db")})
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.IsType(t, &SQLiteStore{}, store)
	assert.NoError(t, closeFn())

	_, _, err = Open(config.StoreConfig{Backend: "postgres"})
	assert.ErrorIs(t, err, domain.ErrConfig)
}
