package room

import (
	"context"
	"crypto/subtle"
	"errors"

	"go.uber.org/zap"

	"github.com/park285/focus-party/internal/domain"
	"github.com/park285/focus-party/internal/msgcat"
	"github.com/park285/focus-party/internal/scoreboard"
	"github.com/park285/focus-party/pkg/partyproto"
)

const banReason = "Repeated inappropriate content"

// snapshot is a copy of the session fields a handler needs off the executor.
type snapshot struct {
	userID   string
	username string
	bound    bool
	closing  bool
}

// Handle processes one raw client frame. Frames from a single connection must
// be handled sequentially by its caller.
func (r *Room) Handle(ctx context.Context, s *Session, raw []byte) {
	msg, err := partyproto.Decode(raw)
	if err != nil {
		r.rejectDecode(s, err)
		return
	}

	var snap snapshot
	if !r.do(func() { snap = r.snapshot(s) }) || snap.closing {
		r.sendError(s, msgcat.KeyShuttingDown, nil)
		return
	}
	if _, isHello := msg.(partyproto.Hello); !isHello && !snap.bound {
		r.sendError(s, msgcat.KeyUnbound, nil)
		return
	}

	switch m := msg.(type) {
	case partyproto.Hello:
		r.do(func() { s.applyHello(m) })
	case partyproto.UpdateProfile:
		r.do(func() { s.applyProfile(m) })
	case partyproto.Chat:
		r.handleChat(ctx, s, snap, m)
	case partyproto.UpdateScore:
		r.handleUpdateScore(ctx, s, snap, m)
	case partyproto.GetDebugState:
		if r.authorizeDebug(s, m.DebugKey) {
			r.replyDebugState(ctx, s, partyproto.TypeGetDebugState)
		}
	case partyproto.ClearMessages:
		if r.authorizeDebug(s, m.DebugKey) {
			r.clearMessages(ctx, s)
		}
	case partyproto.ClearLeaderboard:
		if r.authorizeDebug(s, m.DebugKey) {
			r.clearLeaderboard(ctx, s)
		}
	default:
		r.sendError(s, msgcat.KeyUnknownType, map[string]any{"Type": msg.Kind()})
	}
}

func (r *Room) snapshot(s *Session) snapshot {
	return snapshot{userID: s.userID, username: s.username, bound: s.bound, closing: r.closing}
}

func (r *Room) rejectDecode(s *Session, err error) {
	var unknown *partyproto.UnknownTypeError
	switch {
	case errors.As(err, &unknown):
		r.sendError(s, msgcat.KeyUnknownType, map[string]any{"Type": unknown.Type})
	case errors.Is(err, partyproto.ErrInvalidDelta):
		r.sendError(s, msgcat.KeyInvalidDelta, nil)
	default:
		r.sendError(s, msgcat.KeyMalformed, nil)
	}
}

// handleChat runs ban check, rate limit and moderation in that order, stopping at the first rejection.
func (r *Room) handleChat(ctx context.Context, s *Session, snap snapshot, m partyproto.Chat) {
	log := r.log.With(zap.String("user_id", snap.userID))

	banned, err := r.bans.Check(ctx, snap.userID)
	if err != nil {
		log.Warn("ban_lookup_failed", zap.Error(err))
	}
	if banned {
		r.sendError(s, msgcat.KeyBanned, nil)
		return
	}

	var allowed bool
	now := r.now()
	r.do(func() { allowed = r.limiter.Allow(snap.userID, now) })
	if !allowed {
		log.Info("chat_rate_limited")
		r.sendError(s, msgcat.KeyRateLimited, map[string]any{
			"Limit":  r.limiter.Limit(),
			"Window": r.limiter.Period(),
		})
		return
	}

	flagged, err := r.gate.Flag(ctx, m.Text)
	if err != nil {
		log.Warn("moderation_failed", zap.Error(err))
		flagged = false
	}
	if flagged {
		r.escalate(ctx, s, log)
		return
	}

	var persistErr error
	ok := r.do(func() {
		if r.closing {
			persistErr = ErrClosed
			return
		}
		persistErr = r.appendAndBroadcast(ctx, domain.NewChatMessage(s.username, m.Text, r.now()))
	})
	switch {
	case !ok || errors.Is(persistErr, ErrClosed):
		r.sendError(s, msgcat.KeyShuttingDown, nil)
	case persistErr != nil:
		r.sendError(s, msgcat.KeyInternal, nil)
	}
}

// escalate counts a flagged message against the session and bans at the threshold.
// The message itself is dropped without any reply.
func (r *Room) escalate(ctx context.Context, s *Session, log *zap.Logger) {
	var (
		warnings int
		userID   string
	)
	r.do(func() {
		s.warnings++
		warnings, userID = s.warnings, s.userID
	})
	log.Info("chat_flagged", zap.Int("warnings", warnings))
	if warnings < r.cfg.WarningThreshold {
		return
	}
	if err := r.bans.Ban(ctx, userID, banReason); err != nil {
		log.Error("ban_write_failed", zap.Error(err))
		return
	}
	log.Info("user_banned", zap.Int("warnings", warnings))
}

func (r *Room) handleUpdateScore(ctx context.Context, s *Session, snap snapshot, m partyproto.UpdateScore) {
	_, err := r.engine.UpdateScore(ctx, snap.userID, snap.username, m.Delta)
	switch {
	case err == nil:
	case errors.Is(err, scoreboard.ErrClosed):
		r.sendError(s, msgcat.KeyShuttingDown, nil)
	default:
		r.log.Warn("score_update_failed", zap.String("user_id", snap.userID), zap.Error(err))
		r.sendError(s, msgcat.KeyInternal, nil)
	}
}

// authorizeDebug compares the supplied key in constant time. An unset key disables debug operations.
func (r *Room) authorizeDebug(s *Session, key string) bool {
	if r.cfg.DebugKey == "" {
		r.sendError(s, msgcat.KeyDebugDisabled, nil)
		return false
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(r.cfg.DebugKey)) != 1 {
		r.log.Warn("debug_key_rejected", zap.String("session", s.ID))
		r.sendError(s, msgcat.KeyBadDebugKey, nil)
		return false
	}
	return true
}

func (r *Room) replyDebugState(ctx context.Context, s *Session, action string) {
	st := r.Stats(ctx)
	r.send(s, partyproto.EncodeDebugState(partyproto.DebugState{
		Connections:     st.Connections,
		Sessions:        st.Sessions,
		ChatLogSize:     st.ChatLogSize,
		RateLimiterSize: st.RateLimiterSize,
		BanCacheSize:    st.BanCacheSize,
		PendingScores:   st.Scores.Pending + st.Scores.InFlight,
		ScoreCacheSize:  st.Scores.CacheEntries,
		FlushTimerArmed: st.Scores.TimerArmed,
		ShuttingDown:    st.ShuttingDown,
		Action:          action,
	}))
}

func (r *Room) clearMessages(ctx context.Context, s *Session) {
	var err error
	r.do(func() { err = r.chat.Clear(ctx) })
	if err != nil {
		r.log.Error("chat_clear_failed", zap.Error(err))
		r.sendError(s, msgcat.KeyInternal, nil)
		return
	}
	r.log.Info("chat_cleared", zap.String("session", s.ID))
	r.replyDebugState(ctx, s, partyproto.TypeClearMessages)
}

func (r *Room) clearLeaderboard(ctx context.Context, s *Session) {
	if err := r.engine.Clear(ctx); err != nil {
		r.log.Error("scoreboard_clear_failed", zap.Error(err))
		r.sendError(s, msgcat.KeyInternal, nil)
		return
	}
	r.log.Info("scoreboard_cleared", zap.String("session", s.ID))
	r.replyDebugState(ctx, s, partyproto.TypeClearLeaderboard)
}
