package chatlog

import (
	"context"
	"sync"

	"github.com/park285/focus-party/internal/domain"
)

type memoryStore struct {
	mu    sync.RWMutex
	limit int
	msgs  []domain.ChatMessage // newest first
}

func NewMemoryStore(limit int) Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &memoryStore{limit: limit}
}

func (m *memoryStore) Load(context.Context) ([]domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ChatMessage, len(m.msgs))
	copy(out, m.msgs)
	return out, nil
}

func (m *memoryStore) Prepend(_ context.Context, msg domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.msgs) + 1
	if n > m.limit {
		n = m.limit
	}
	next := make([]domain.ChatMessage, n)
	next[0] = msg
	copy(next[1:], m.msgs)
	m.msgs = next
	return nil
}

func (m *memoryStore) Clear(context.Context) error {
	m.mu.Lock()
	m.msgs = nil
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Len(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.msgs), nil
}

func (m *memoryStore) Ping(context.Context) error { return nil }
