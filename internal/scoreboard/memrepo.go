package scoreboard

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/focus-party/internal/domain"
)

type memKey struct{ userID, month string }

type memRepository struct {
	mu   sync.RWMutex
	rows map[memKey]domain.ScoreboardEntry
}

// NewMemoryRepository keeps rows in process memory with the same (user, month) uniqueness.
func NewMemoryRepository() Repository {
	return &memRepository{rows: make(map[memKey]domain.ScoreboardEntry)}
}

func (m *memRepository) Month(_ context.Context, month string) ([]domain.ScoreboardEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.ScoreboardEntry
	for k, e := range m.rows {
		if k.month == month {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (m *memRepository) UserScore(_ context.Context, userID, month string) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.rows[memKey{userID, month}]
	return e.Score, ok, nil
}

func (m *memRepository) UpsertBatch(_ context.Context, entries []domain.ScoreboardEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.rows[memKey{e.UserID, e.Month}] = e
	}
	return nil
}

func (m *memRepository) ClearMonth(_ context.Context, month string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.rows {
		if k.month == month {
			delete(m.rows, k)
		}
	}
	return nil
}

func (m *memRepository) Ping(context.Context) error { return nil }

func sortEntries(entries []domain.ScoreboardEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})
}
