package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "warmintro/backend/pkg/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_Lifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job, err := store.Create(ctx, "user-1", KindIngest)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StatusPending, job.Status)

	require.NoError(t, store.MarkRunning(ctx, job.ID))
	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)

	require.NoError(t, store.Complete(ctx, job.ID, 10, 2, "10 contacts"))
	got, err = store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 10, got.Processed)
	assert.Equal(t, 2, got.Failed)
	assert.NotNil(t, got.FinishedAt)
}

func TestStore_Fail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job, err := store.Create(ctx, "user-1", KindRescore)
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, job.ID, errors.New("neo4j down")))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "neo4j down", got.Error)
}

func TestStore_NotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsNotFound(store.MarkRunning(ctx, "missing")))
}

func TestStore_ListByOwner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx, "user-1", KindDedup)
		require.NoError(t, err)
	}
	_, err := store.Create(ctx, "user-2", KindDedup)
	require.NoError(t, err)

	jobs, err := store.ListByOwner(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)

	jobs, err = store.ListByOwner(ctx, "user-1", 2)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestIsPostgres(t *testing.T) {
	assert.True(t, isPostgres("postgres://u:p@localhost:5432/db"))
	assert.True(t, isPostgres("host=localhost user=u dbname=db"))
	assert.False(t, isPostgres("warmintro_jobs.db"))
	assert.False(t, isPostgres("file::memory:"))
}
