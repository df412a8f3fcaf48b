package ban

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/focus-party/internal/pgstore"
)

func TestRepositoryAgainstPostgres(t *testing.T) {
	url := os.Getenv("PARTY_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PARTY_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := pgstore.Open(ctx, url)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, pgstore.EnsureSchema(ctx, db))
	_, err = db.ExecContext(ctx, `DELETE FROM banned WHERE user_id LIKE 'bantest-%'`)
	require.NoError(t, err)

	repo := NewRepository(db)
	require.NoError(t, repo.Ping(ctx))

	banned, err := repo.IsBanned(ctx, "bantest-1")
	require.NoError(t, err)
	assert.False(t, banned)

	require.NoError(t, repo.Ban(ctx, "bantest-1", "Repeated inappropriate content"))
	require.NoError(t, repo.Ban(ctx, "bantest-1", "Repeated inappropriate content"))

	banned, err = repo.IsBanned(ctx, "bantest-1")
	require.NoError(t, err)
	assert.True(t, banned)

	among, err := repo.BannedAmong(ctx, []string{"bantest-1", "bantest-2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"bantest-1": true}, among)
}
