package scoreboard

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/focus-party/internal/domain"
	"github.com/park285/focus-party/internal/pgstore"
)

func TestMemoryRepositoryUniquePerUserMonth(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.UpsertBatch(ctx, []domain.ScoreboardEntry{
		{UserID: "u1", Username: "Alice", Score: 5, Month: "2026-10"},
		{UserID: "u2", Username: "Bob", Score: 9, Month: "2026-10"},
		{UserID: "u1", Username: "Alice", Score: 1, Month: "2026-09"},
	}))
	require.NoError(t, repo.UpsertBatch(ctx, []domain.ScoreboardEntry{
		{UserID: "u1", Username: "Alice", Score: 12, Month: "2026-10"},
	}))

	rows, err := repo.Month(ctx, "2026-10")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "u1", rows[0].UserID)
	assert.Equal(t, int64(12), rows[0].Score)

	score, ok, err := repo.UserScore(ctx, "u1", "2026-09")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), score)

	require.NoError(t, repo.ClearMonth(ctx, "2026-10"))
	rows, err = repo.Month(ctx, "2026-10")
	require.NoError(t, err)
	assert.Empty(t, rows)
	_, ok, _ = repo.UserScore(ctx, "u1", "2026-09")
	assert.True(t, ok)
}

func TestPostgresRepository(t *testing.T) {
	url := os.Getenv("PARTY_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PARTY_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := pgstore.Open(ctx, url)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, pgstore.EnsureSchema(ctx, db))

	const month = "1999-01"
	repo := NewRepository(db)
	require.NoError(t, repo.ClearMonth(ctx, month))

	require.NoError(t, repo.UpsertBatch(ctx, []domain.ScoreboardEntry{
		{UserID: "pg-u1", Username: "Alice", Score: 5, Month: month, Region: "global"},
		{UserID: "pg-u2", Username: "Bob", Score: 3, Month: month, Region: "global"},
	}))
	require.NoError(t, repo.UpsertBatch(ctx, []domain.ScoreboardEntry{
		{UserID: "pg-u2", Username: "Bobby", Score: 8, Month: month, Region: "global"},
	}))

	rows, err := repo.Month(ctx, month)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, domain.ScoreboardEntry{UserID: "pg-u2", Username: "Bobby", Score: 8, Month: month, Region: "global"}, rows[0])

	score, ok, err := repo.UserScore(ctx, "pg-u1", month)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5), score)

	require.NoError(t, repo.ClearMonth(ctx, month))
}
