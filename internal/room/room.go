package room

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/focus-party/internal/ban"
	"github.com/park285/focus-party/internal/chatlog"
	"github.com/park285/focus-party/internal/domain"
	"github.com/park285/focus-party/internal/moderation"
	"github.com/park285/focus-party/internal/msgcat"
	"github.com/park285/focus-party/internal/ratelimit"
	"github.com/park285/focus-party/internal/scoreboard"
	"github.com/park285/focus-party/pkg/partyproto"
)

var ErrClosed = errors.New("room closed")

const systemSender = "System"

type Config struct {
	RoomID           string
	Region           string
	DebugKey         string
	ChatRateLimit    int
	ChatRateWindow   time.Duration
	WarningThreshold int
	FlushInterval    time.Duration
	CacheTTL         time.Duration
	JanitorInterval  time.Duration
}

type Deps struct {
	Chat    chatlog.Store
	Bans    *ban.Checker
	Gate    moderation.Gate
	Scores  scoreboard.Repository
	Catalog *msgcat.Catalog
	Logger  *zap.Logger
	Config  Config

	// Now and AfterFunc are overridable for tests.
	Now       func() time.Time
	AfterFunc scoreboard.AfterFunc
}

// Room owns one chat namespace. Every synchronous handler section runs on a
// single executor goroutine; I/O happens between sections on the caller.
type Room struct {
	cfg     Config
	chat    chatlog.Store
	bans    *ban.Checker
	gate    moderation.Gate
	engine  *scoreboard.Engine
	catalog *msgcat.Catalog
	log     *zap.Logger
	now     func() time.Time

	mailbox chan func()
	quit    chan struct{}
	stopped chan struct{}
	stopMu  sync.Once

	// executor-owned
	sessions map[string]*Session
	limiter  *ratelimit.Window
	closing  bool
}

func New(d Deps) *Room {
	cfg := d.Config
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = 3
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = time.Minute
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Gate == nil {
		d.Gate = moderation.Allow{}
	}
	if d.Catalog == nil {
		d.Catalog = msgcat.MustDefault()
	}
	if d.Bans == nil {
		d.Bans = ban.NewChecker(ban.NewMemoryStore(), ban.NewCache(time.Minute))
	}

	r := &Room{
		cfg:      cfg,
		chat:     d.Chat,
		bans:     d.Bans,
		gate:     d.Gate,
		catalog:  d.Catalog,
		log:      d.Logger.With(zap.String("room", cfg.RoomID)),
		now:      d.Now,
		mailbox:  make(chan func()),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		sessions: make(map[string]*Session),
		limiter:  ratelimit.NewWindow(cfg.ChatRateLimit, cfg.ChatRateWindow),
	}
	r.engine = scoreboard.NewEngine(d.Scores, scoreboard.Options{
		Region:        cfg.Region,
		FlushInterval: cfg.FlushInterval,
		CacheTTL:      cfg.CacheTTL,
		Logger:        r.log.Named("scoreboard"),
		Bans:          d.Bans,
		OnFlush:       r.broadcastScoreboard,
		Now:           d.Now,
		AfterFunc:     d.AfterFunc,
	})

	go r.loop()
	go r.janitor()
	return r
}

func (r *Room) loop() {
	defer close(r.stopped)
	for {
		select {
		case f := <-r.mailbox:
			f()
		case <-r.quit:
			return
		}
	}
}

// do runs fn on the executor and waits for it. Returns false once the room has stopped.
func (r *Room) do(fn func()) bool {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}
	select {
	case r.mailbox <- task:
		<-done
		return true
	case <-r.stopped:
		return false
	}
}

// doCtx is do with the wait for an idle executor bounded by ctx.
func (r *Room) doCtx(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}
	select {
	case r.mailbox <- task:
		<-done
		return nil
	case <-r.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) janitor() {
	t := time.NewTicker(r.cfg.JanitorInterval)
	defer t.Stop()
	for {
		select {
		case <-r.stopped:
			return
		case <-t.C:
			now := r.now()
			r.do(func() { r.limiter.Prune(now) })
			r.bans.Cache().Prune(now)
		}
	}
}

// Engine exposes the scoreboard engine for the HTTP bridge.
func (r *Room) Engine() *scoreboard.Engine { return r.engine }

// Join registers an unbound session and replays the stored chat log followed
// by the current scoreboard, before any frame from the client is handled.
func (r *Room) Join(ctx context.Context, conn Conn) (*Session, error) {
	s := newSession(conn)
	var closing bool
	ok := r.do(func() {
		if r.closing {
			closing = true
			return
		}
		r.sessions[s.ID] = s

		history, err := r.chat.Load(ctx)
		if err != nil {
			r.log.Warn("chat_history_load_failed", zap.Error(err))
		}
		for _, m := range history {
			conn.Send(partyproto.EncodeChat(m))
		}
		board, err := r.engine.Scoreboard(ctx)
		if err != nil {
			r.log.Warn("scoreboard_load_failed", zap.Error(err))
			return
		}
		conn.Send(partyproto.EncodeScoreboard(board))
	})
	if !ok || closing {
		conn.Send(partyproto.EncodeError(r.text(msgcat.KeyShuttingDown, nil)))
		return nil, ErrClosed
	}
	r.log.Debug("session_joined", zap.String("session", s.ID))
	return s, nil
}

// Leave unregisters the session. A bound user's departure is announced and
// their queued score written immediately.
func (r *Room) Leave(ctx context.Context, s *Session) {
	var (
		wasBound bool
		userID   string
	)
	r.do(func() {
		if _, ok := r.sessions[s.ID]; !ok {
			return
		}
		delete(r.sessions, s.ID)
		if !s.bound {
			return
		}
		wasBound, userID = true, s.userID
		text := r.text(msgcat.KeyLeft, map[string]any{"Username": s.username})
		_ = r.appendAndBroadcast(ctx, domain.NewChatMessage(systemSender, text, r.now()))
	})
	if !wasBound {
		return
	}
	if err := r.engine.FlushUser(ctx, userID); err != nil {
		r.log.Warn("score_flush_on_leave_failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// appendAndBroadcast must run on the executor. Persist and fan-out happen in one section.
func (r *Room) appendAndBroadcast(ctx context.Context, m domain.ChatMessage) error {
	if err := r.chat.Prepend(ctx, m); err != nil {
		r.log.Error("chat_persist_failed", zap.Error(err))
		return err
	}
	r.fanout(partyproto.EncodeChat(m))
	return nil
}

// fanout must run on the executor.
func (r *Room) fanout(frame []byte) {
	for _, s := range r.sessions {
		if !s.conn.Send(frame) {
			r.log.Warn("slow_consumer_dropped", zap.String("session", s.ID))
			s.conn.Close("slow consumer")
		}
	}
}

// Broadcast sends frame to every live session.
func (r *Room) Broadcast(frame []byte) {
	r.do(func() { r.fanout(frame) })
}

func (r *Room) broadcastScoreboard(entries []domain.ScoreboardEntry) {
	r.Broadcast(partyproto.EncodeScoreboard(entries))
}

func (r *Room) send(s *Session, frame []byte) {
	if !s.conn.Send(frame) {
		s.conn.Close("slow consumer")
	}
}

func (r *Room) sendError(s *Session, key string, data any) {
	r.send(s, partyproto.EncodeError(r.text(key, data)))
}

func (r *Room) text(key string, data any) string {
	return r.catalog.Text(key, data)
}

// Shutdown rejects new work, drains queued scores and closes every session.
func (r *Room) Shutdown(ctx context.Context) error {
	if !r.do(func() { r.closing = true }) {
		return nil
	}
	err := r.engine.Shutdown(ctx)
	if err != nil {
		r.log.Error("score_drain_failed", zap.Error(err))
	}
	r.do(func() {
		for id, s := range r.sessions {
			s.conn.Close("server shutting down")
			delete(r.sessions, id)
		}
	})
	r.stopMu.Do(func() { close(r.quit) })
	<-r.stopped
	return err
}

// Stats is a snapshot of the room's in-memory structures.
type Stats struct {
	Connections     int
	ChatLogSize     int
	RateLimiterSize int
	BanCacheSize    int
	ShuttingDown    bool
	Scores          scoreboard.Stats
	Sessions        []partyproto.SessionView
	// Errors names the parts that could not be read in time, keyed "sessions" or "chatLog".
	Errors map[string]string
}

// Stats gathers the snapshot within ctx. Parts that miss the deadline are
// reported in Errors and left zero.
func (r *Room) Stats(ctx context.Context) Stats {
	var st Stats
	fail := func(part string, err error) {
		if st.Errors == nil {
			st.Errors = make(map[string]string)
		}
		st.Errors[part] = err.Error()
	}

	type sessionStats struct {
		connections, limiter int
		closing              bool
		views                []partyproto.SessionView
	}
	res := make(chan sessionStats, 1)
	err := r.doCtx(ctx, func() {
		ss := sessionStats{connections: len(r.sessions), limiter: r.limiter.Size(), closing: r.closing}
		for _, s := range r.sessions {
			ss.views = append(ss.views, s.view())
		}
		res <- ss
	})
	if err != nil {
		fail("sessions", err)
	} else {
		ss := <-res
		st.Connections, st.RateLimiterSize, st.ShuttingDown, st.Sessions = ss.connections, ss.limiter, ss.closing, ss.views
	}

	if n, err := r.chat.Len(ctx); err != nil {
		fail("chatLog", err)
	} else {
		st.ChatLogSize = n
	}
	st.BanCacheSize = r.bans.Cache().Size()
	st.Scores = r.engine.Stats()
	return st
}

// View returns the session's current state.
func (r *Room) View(s *Session) partyproto.SessionView {
	var v partyproto.SessionView
	r.do(func() { v = s.view() })
	return v
}

func nameOrAnonymous(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return domain.AnonymousName
	}
	return name
}
