package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneprompteu/oneprompt/internal/apperror"
	"github.com/oneprompteu/oneprompt/internal/model"
	"github.com/oneprompteu/oneprompt/internal/repository"
	"github.com/oneprompteu/oneprompt/internal/repository/sqlite"
)

func testDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateAndGet(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	run := &model.Run{
		SessionID:  "sess-1",
		RunID:      "run-1",
		OK:         false,
		ErrorKind:  "timeout",
		CodeSize:   120,
		OutputSize: 8,
		Duration:   1500 * time.Millisecond,
	}
	require.NoError(t, db.Create(ctx, run))
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.CreatedAt.IsZero())

	got, err := db.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "timeout", got.ErrorKind)
	assert.False(t, got.OK)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
}

func TestGetByID_NotFound(t *testing.T) {
	db := testDB(t)

	_, err := db.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestList(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		session := "sess-a"
		if i == 2 {
			session = "sess-b"
		}
		require.NoError(t, db.Create(ctx, &model.Run{SessionID: session, OK: true}))
	}

	t.Run("all runs newest first", func(t *testing.T) {
		runs, err := db.List(ctx, repository.ListOptions{})
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, "sess-b", runs[0].SessionID)
	})

	t.Run("session filter", func(t *testing.T) {
		runs, err := db.List(ctx, repository.ListOptions{SessionID: "sess-a"})
		require.NoError(t, err)
		assert.Len(t, runs, 2)
	})

	t.Run("limit and offset", func(t *testing.T) {
		runs, err := db.List(ctx, repository.ListOptions{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "sess-a", runs[0].SessionID)
	})
}
