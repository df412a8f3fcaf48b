package chatlog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/park285/focus-party/internal/domain"
)

type redisStore struct {
	rdb   redis.UniversalClient
	room  string
	limit int
}

// NewRedisStore keeps the log for room in a Redis list, head = newest.
func NewRedisStore(rdb redis.UniversalClient, room string, limit int) Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &redisStore{rdb: rdb, room: strings.TrimSpace(room), limit: limit}
}

func (s *redisStore) key() string { return "party:" + s.room + ":chat" }

func (s *redisStore) Load(ctx context.Context) ([]domain.ChatMessage, error) {
	raws, err := s.rdb.LRange(ctx, s.key(), 0, int64(s.limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("load chat log: %w", err)
	}
	out := make([]domain.ChatMessage, 0, len(raws))
	for _, raw := range raws {
		var m domain.ChatMessage
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *redisStore) Prepend(ctx context.Context, msg domain.ChatMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, s.key(), raw)
	pipe.LTrim(ctx, s.key(), 0, int64(s.limit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("prepend chat message: %w", err)
	}
	return nil
}

func (s *redisStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key()).Err()
}

func (s *redisStore) Len(ctx context.Context) (int, error) {
	n, err := s.rdb.LLen(ctx, s.key()).Result()
	return int(n), err
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// ParseRedisURL accepts redis:// and rediss:// URLs with an optional /db path.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}
