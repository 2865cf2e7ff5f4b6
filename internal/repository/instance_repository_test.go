package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "planner.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestMarkCompletedIsUpsert(t *testing.T) {
	repo := NewInstanceRepository(openTestDB(t))
	ctx := context.Background()

	first := time.Date(2026, time.June, 3, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkCompleted(ctx, 1, "2026-06-03", first))
	// Completing the same occurrence again must not violate the unique key.
	require.NoError(t, repo.MarkCompleted(ctx, 1, "2026-06-03", first.Add(time.Hour)))

	done, err := repo.IsCompleted(ctx, 1, "2026-06-03")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestCompletionIsPerOccurrence(t *testing.T) {
	repo := NewInstanceRepository(openTestDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.MarkCompleted(ctx, 1, "2026-06-03", now))

	done, err := repo.IsCompleted(ctx, 1, "2026-06-04")
	require.NoError(t, err)
	assert.False(t, done)

	// Same date on a different template is independent too.
	done, err = repo.IsCompleted(ctx, 2, "2026-06-03")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestMarkIncompleteIsIdempotent(t *testing.T) {
	repo := NewInstanceRepository(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.MarkCompleted(ctx, 1, "2026-06-03", time.Now()))
	require.NoError(t, repo.MarkIncomplete(ctx, 1, "2026-06-03"))
	require.NoError(t, repo.MarkIncomplete(ctx, 1, "2026-06-03"))
	require.NoError(t, repo.MarkIncomplete(ctx, 1, "2026-06-09"))

	done, err := repo.IsCompleted(ctx, 1, "2026-06-03")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestCompletionMap(t *testing.T) {
	repo := NewInstanceRepository(openTestDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.MarkCompleted(ctx, 1, "2026-06-01", now))
	require.NoError(t, repo.MarkCompleted(ctx, 1, "2026-06-03", now))
	require.NoError(t, repo.MarkCompleted(ctx, 2, "2026-06-02", now))

	completed, err := repo.CompletionMap(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"2026-06-01": true, "2026-06-03": true}, completed)
}

func TestDeleteForTaskCascades(t *testing.T) {
	repo := NewInstanceRepository(openTestDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.MarkCompleted(ctx, 1, "2026-06-01", now))
	require.NoError(t, repo.MarkCompleted(ctx, 1, "2026-06-02", now))
	require.NoError(t, repo.MarkCompleted(ctx, 2, "2026-06-01", now))

	require.NoError(t, repo.DeleteForTask(ctx, 1))

	completed, err := repo.CompletionMap(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, completed)

	done, err := repo.IsCompleted(ctx, 2, "2026-06-01")
	require.NoError(t, err)
	assert.True(t, done)
}
