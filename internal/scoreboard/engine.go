package scoreboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/focus-party/internal/domain"
)

var (
	ErrClosed      = errors.New("scoreboard engine closed")
	ErrEmptyUserID = errors.New("empty user id")
)

// Timer is the subset of *time.Timer the engine needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. Tests swap in a manual implementation.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// BanFilter reports which of the given users are banned.
type BanFilter interface {
	FilterBanned(ctx context.Context, userIDs []string) (map[string]bool, error)
}

type Options struct {
	Region        string
	FlushInterval time.Duration
	CacheTTL      time.Duration
	Logger        *zap.Logger
	Bans          BanFilter
	// OnFlush receives the refreshed month scoreboard after every write.
	OnFlush   func(entries []domain.ScoreboardEntry)
	Now       func() time.Time
	AfterFunc AfterFunc
}

// slot keys a queued total by user and the month it was computed for.
type slot struct{ userID, month string }

type cachedMonth struct {
	month   string
	entries []domain.ScoreboardEntry
	expires time.Time
}

// Stats is a point-in-time view of the engine's in-memory state.
type Stats struct {
	CacheEntries int
	Pending      int
	InFlight     int
	TimerArmed   bool
}

// Engine batches score updates: the newest computed total per user waits in a
// queue until one debounce timer fires and writes the whole queue in one upsert.
type Engine struct {
	repo Repository
	opts Options
	log  *zap.Logger

	// updateMu serializes read-compute-replace so same-user updates never lose a delta.
	updateMu sync.Mutex
	// flushMu serializes batch writes; at most one batch is in flight.
	flushMu sync.Mutex

	mu       sync.Mutex
	pending  map[slot]domain.PendingScore
	inflight map[slot]domain.PendingScore
	timer    Timer
	cache    *cachedMonth
	gen      uint64
	closed   bool
}

func NewEngine(repo Repository, opts Options) *Engine {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = realAfterFunc
	}
	return &Engine{
		repo:     repo,
		opts:     opts,
		log:      opts.Logger,
		pending:  make(map[slot]domain.PendingScore),
		inflight: make(map[slot]domain.PendingScore),
	}
}

// UpdateScore applies delta to the user's latest known total, floors it at zero,
// replaces any queued total for the user and arms the flush timer if idle.
// An empty username keeps the last known name.
func (e *Engine) UpdateScore(ctx context.Context, userID, username string, delta int64) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrEmptyUserID
	}
	e.updateMu.Lock()
	defer e.updateMu.Unlock()

	now := e.opts.Now()
	key := slot{userID: userID, month: domain.MonthKey(now)}
	base, known, err := e.baseScore(ctx, key)
	if err != nil {
		return 0, err
	}
	total := domain.ClampScore(base, delta)
	if username == "" {
		username = known
	}
	if username == "" {
		username = domain.AnonymousName
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrClosed
	}
	e.pending[key] = domain.PendingScore{Username: username, Score: total, Month: key.month, Timestamp: now}
	e.armLocked()
	return total, nil
}

// baseScore prefers a queued or in-flight total over the cached month scoreboard.
// It also returns the name last recorded for the user, empty when unknown.
func (e *Engine) baseScore(ctx context.Context, key slot) (int64, string, error) {
	e.mu.Lock()
	if p, ok := e.pending[key]; ok {
		e.mu.Unlock()
		return p.Score, p.Username, nil
	}
	if p, ok := e.inflight[key]; ok {
		e.mu.Unlock()
		return p.Score, p.Username, nil
	}
	e.mu.Unlock()

	entries, err := e.monthBoard(ctx, key.month, e.opts.Now())
	if err != nil {
		return 0, "", err
	}
	for _, entry := range entries {
		if entry.UserID == key.userID {
			return entry.Score, entry.Username, nil
		}
	}
	return 0, "", nil
}

func (e *Engine) armLocked() {
	if e.timer != nil || e.closed || len(e.pending) == 0 {
		return
	}
	e.timer = e.opts.AfterFunc(e.opts.FlushInterval, e.onTimer)
}

func (e *Engine) onTimer() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.ProcessBatch(ctx); err != nil && !errors.Is(err, ErrClosed) {
		e.log.Warn("score_flush_failed", zap.Error(err))
	}
}

// ProcessBatch drains the whole queue into one upsert. On failure the batch is
// merged back under newer entries and the timer re-armed.
func (e *Engine) ProcessBatch(ctx context.Context) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	batch := e.pending
	e.pending = make(map[slot]domain.PendingScore)
	for k, p := range batch {
		e.inflight[k] = p
	}
	e.invalidateLocked()
	e.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return e.write(ctx, batch)
}

// FlushUser writes the user's queued totals now instead of waiting for the timer.
func (e *Engine) FlushUser(ctx context.Context, userID string) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	batch := make(map[slot]domain.PendingScore)
	for k, p := range e.pending {
		if k.userID == userID {
			batch[k] = p
			delete(e.pending, k)
			e.inflight[k] = p
		}
	}
	if len(batch) == 0 {
		e.mu.Unlock()
		return nil
	}
	e.invalidateLocked()
	e.mu.Unlock()

	return e.write(ctx, batch)
}

// write upserts each total into the month it was computed for.
func (e *Engine) write(ctx context.Context, batch map[slot]domain.PendingScore) error {
	seen := make(map[string]bool, len(batch))
	ids := make([]string, 0, len(batch))
	for k := range batch {
		if !seen[k.userID] {
			seen[k.userID] = true
			ids = append(ids, k.userID)
		}
	}

	var banned map[string]bool
	if e.opts.Bans != nil {
		b, err := e.opts.Bans.FilterBanned(ctx, ids)
		if err != nil {
			e.restore(batch)
			return fmt.Errorf("filter banned: %w", err)
		}
		banned = b
	}

	entries := make([]domain.ScoreboardEntry, 0, len(batch))
	for k, p := range batch {
		if banned[k.userID] {
			e.log.Info("score_dropped_banned", zap.String("user_id", k.userID), zap.String("month", k.month))
			continue
		}
		entries = append(entries, domain.ScoreboardEntry{
			UserID:   k.userID,
			Username: p.Username,
			Score:    p.Score,
			Month:    k.month,
			Region:   e.opts.Region,
		})
	}
	sortEntries(entries)

	if len(entries) > 0 {
		if err := e.repo.UpsertBatch(ctx, entries); err != nil {
			e.restore(batch)
			return err
		}
	}

	e.mu.Lock()
	for k := range batch {
		delete(e.inflight, k)
	}
	e.invalidateLocked()
	e.mu.Unlock()

	e.log.Debug("score_flush", zap.Int("written", len(entries)), zap.Int("dropped", len(batch)-len(entries)))
	e.notify(ctx)
	return nil
}

// restore puts a failed batch back without overwriting totals queued since.
func (e *Engine) restore(batch map[slot]domain.PendingScore) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, p := range batch {
		delete(e.inflight, k)
		if _, newer := e.pending[k]; !newer {
			e.pending[k] = p
		}
	}
	e.armLocked()
}

func (e *Engine) notify(ctx context.Context) {
	if e.opts.OnFlush == nil {
		return
	}
	entries, err := e.Scoreboard(ctx)
	if err != nil {
		e.log.Warn("scoreboard_refresh_failed", zap.Error(err))
		return
	}
	e.opts.OnFlush(entries)
}

func (e *Engine) invalidateLocked() {
	e.cache = nil
	e.gen++
}

// Scoreboard returns the current month ranking, from cache when still fresh.
func (e *Engine) Scoreboard(ctx context.Context) ([]domain.ScoreboardEntry, error) {
	now := e.opts.Now()
	return e.monthBoard(ctx, domain.MonthKey(now), now)
}

func (e *Engine) monthBoard(ctx context.Context, month string, now time.Time) ([]domain.ScoreboardEntry, error) {
	e.mu.Lock()
	if c := e.cache; c != nil && c.month == month && now.Before(c.expires) {
		out := copyEntries(c.entries)
		e.mu.Unlock()
		return out, nil
	}
	gen := e.gen
	e.mu.Unlock()

	entries, err := e.repo.Month(ctx, month)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.gen == gen {
		e.cache = &cachedMonth{month: month, entries: entries, expires: now.Add(e.opts.CacheTTL)}
	}
	e.mu.Unlock()
	return copyEntries(entries), nil
}

// UserScore is a point read of the persisted current-month score; 0 when absent.
func (e *Engine) UserScore(ctx context.Context, userID string) (int64, error) {
	score, _, err := e.repo.UserScore(ctx, userID, domain.MonthKey(e.opts.Now()))
	return score, err
}

// PendingScore returns the user's queued total for the current month, if any.
func (e *Engine) PendingScore(userID string) (domain.PendingScore, bool) {
	key := slot{userID: userID, month: domain.MonthKey(e.opts.Now())}
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pending[key]
	return p, ok
}

// Clear drops the current month's queued totals and deletes its rows. Updates
// wait until the delete lands so none is computed from a row being removed.
func (e *Engine) Clear(ctx context.Context) error {
	e.updateMu.Lock()
	defer e.updateMu.Unlock()
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	month := domain.MonthKey(e.opts.Now())
	e.mu.Lock()
	for k := range e.pending {
		if k.month == month {
			delete(e.pending, k)
		}
	}
	for k := range e.inflight {
		if k.month == month {
			delete(e.inflight, k)
		}
	}
	if e.timer != nil && len(e.pending) == 0 {
		e.timer.Stop()
		e.timer = nil
	}
	e.invalidateLocked()
	e.mu.Unlock()

	if err := e.repo.ClearMonth(ctx, month); err != nil {
		return err
	}
	e.mu.Lock()
	e.invalidateLocked()
	e.mu.Unlock()
	e.notify(ctx)
	return nil
}

// Shutdown stops the timer and drains the queue synchronously. Later updates fail with ErrClosed.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.mu.Unlock()
	return e.ProcessBatch(ctx)
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Stats{Pending: len(e.pending), InFlight: len(e.inflight), TimerArmed: e.timer != nil}
	if e.cache != nil {
		s.CacheEntries = len(e.cache.entries)
	}
	return s
}

func copyEntries(in []domain.ScoreboardEntry) []domain.ScoreboardEntry {
	out := make([]domain.ScoreboardEntry, len(in))
	copy(out, in)
	return out
}
