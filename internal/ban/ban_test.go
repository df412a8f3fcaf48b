package ban

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	Store
	lookups int
	fail    error
}

func (s *countingStore) IsBanned(ctx context.Context, userID string) (bool, error) {
	s.lookups++
	if s.fail != nil {
		return false, s.fail
	}
	return s.Store.IsBanned(ctx, userID)
}

func TestMemoryStoreBanIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Ban(ctx, "u1", "Repeated inappropriate content"))
	require.NoError(t, s.Ban(ctx, "u1", "again"))

	banned, err := s.IsBanned(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, banned)

	got, err := s.BannedAmong(ctx, []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"u1": true}, got)

	assert.ErrorIs(t, s.Ban(ctx, "  ", "x"), ErrEmptyUserID)
}

func TestCacheExpires(t *testing.T) {
	c := NewCache(time.Minute)
	now := time.Unix(1_700_000_000, 0)

	c.Set("u1", false, now)
	banned, ok := c.Get("u1", now.Add(59*time.Second))
	assert.True(t, ok)
	assert.False(t, banned)

	_, ok = c.Get("u1", now.Add(time.Minute))
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestCachePrune(t *testing.T) {
	c := NewCache(time.Second)
	now := time.Unix(1_700_000_000, 0)
	c.Set("a", false, now)
	c.Set("b", true, now.Add(5*time.Second))
	c.Prune(now.Add(2 * time.Second))
	assert.Equal(t, 1, c.Size())
}

func TestCheckerUsesCacheAfterFirstLookup(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: NewMemoryStore()}
	chk := NewChecker(store, NewCache(time.Minute))

	for i := 0; i < 3; i++ {
		banned, err := chk.Check(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, banned)
	}
	assert.Equal(t, 1, store.lookups)
}

func TestCheckerBanOverridesCachedNegative(t *testing.T) {
	ctx := context.Background()
	chk := NewChecker(NewMemoryStore(), NewCache(time.Minute))

	banned, err := chk.Check(ctx, "u1")
	require.NoError(t, err)
	require.False(t, banned)

	require.NoError(t, chk.Ban(ctx, "u1", "Repeated inappropriate content"))

	banned, err = chk.Check(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, banned)
}

func TestCheckerPropagatesStoreError(t *testing.T) {
	store := &countingStore{Store: NewMemoryStore(), fail: errors.New("db down")}
	chk := NewChecker(store, NewCache(time.Minute))

	_, err := chk.Check(context.Background(), "u1")
	assert.Error(t, err)
	assert.Equal(t, 0, chk.Cache().Size())
}

func TestCheckerFilterBanned(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Ban(ctx, "bad", "x"))
	chk := NewChecker(store, NewCache(time.Minute))

	got, err := chk.FilterBanned(ctx, []string{"good", "bad"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"bad": true}, got)

	banned, ok := chk.Cache().Get("bad", time.Now())
	assert.True(t, ok)
	assert.True(t, banned)
}
