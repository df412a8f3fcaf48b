package chatlog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/focus-party/internal/domain"
)

func newRedis(t *testing.T, limit int) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, "chat", limit)
}

func stores(t *testing.T, limit int) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(limit),
		"redis":  newRedis(t, limit),
	}
}

func TestPrependIsNewestFirst(t *testing.T) {
	for name, s := range stores(t, DefaultLimit) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			at := time.UnixMilli(1_700_000_000_000)
			require.NoError(t, s.Prepend(ctx, domain.NewChatMessage("Anonymous", "first", at)))
			require.NoError(t, s.Prepend(ctx, domain.NewChatMessage("Anonymous", "second", at.Add(time.Second))))

			got, err := s.Load(ctx)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "second", got[0].Text)
			assert.Equal(t, "first", got[1].Text)
			assert.Equal(t, "chat", got[0].Type)
		})
	}
}

func TestBoundKeepsMostRecent(t *testing.T) {
	for name, s := range stores(t, DefaultLimit) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 1050; i++ {
				require.NoError(t, s.Prepend(ctx, domain.ChatMessage{Type: "chat", From: "u", Text: fmt.Sprint(i)}))
			}
			n, err := s.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1000, n)

			got, err := s.Load(ctx)
			require.NoError(t, err)
			require.Len(t, got, 1000)
			assert.Equal(t, "1049", got[0].Text)
			assert.Equal(t, "50", got[999].Text)
		})
	}
}

func TestClear(t *testing.T) {
	for name, s := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Prepend(ctx, domain.ChatMessage{Type: "chat", Text: "x"}))
			require.NoError(t, s.Clear(ctx))
			n, err := s.Len(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
			require.NoError(t, s.Ping(ctx))
		})
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := ParseRedisURL("redis://:pw@localhost:6379/2")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)

	_, err = ParseRedisURL("http://localhost")
	assert.Error(t, err)
}
