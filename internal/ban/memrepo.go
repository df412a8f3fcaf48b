package ban

import (
	"context"
	"strings"
	"sync"
)

// memrepo keeps bans in process memory; used when DATABASE_URL is unset and in tests.
type memrepo struct {
	mu   sync.RWMutex
	bans map[string]string // userID -> reason
}

func NewMemoryStore() Store {
	return &memrepo{bans: make(map[string]string)}
}

func (m *memrepo) IsBanned(ctx context.Context, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, ErrEmptyUserID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.bans[userID]
	return ok, nil
}

func (m *memrepo) BannedAmong(ctx context.Context, userIDs []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool)
	for _, id := range userIDs {
		if _, ok := m.bans[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (m *memrepo) Ban(ctx context.Context, userID, reason string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrEmptyUserID
	}
	m.mu.Lock()
	m.bans[userID] = reason
	m.mu.Unlock()
	return nil
}

func (m *memrepo) Ping(ctx context.Context) error { return nil }
