package postgres

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/rse/internal/repository"
)

// Runs against a real database when TEST_DATABASE_URL is set.
func TestRunRepo(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := New(ctx, url)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.EnsureSchema(ctx))

	repo := NewRunRepo(db)
	method := "Filter-" + uuid.NewString()

	run := &repository.Run{
		ID:           uuid.New(),
		Method:       method,
		Subject:      "tester",
		Status:       repository.RunStatusSucceeded,
		QueryCount:   2,
		InputChunks:  10,
		OutputChunks: 4,
		Options:      json.RawMessage(`{"max_length": 3}`),
		Duration:     1500 * time.Millisecond,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, repo.Create(ctx, run))

	got, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Method, got.Method)
	assert.Equal(t, run.OutputChunks, got.OutputChunks)
	assert.Equal(t, run.Duration, got.Duration)
	assert.JSONEq(t, string(run.Options), string(got.Options))

	runs, total, err := repo.List(ctx, method, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
