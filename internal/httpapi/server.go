package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/park285/focus-party/internal/domain"
	"github.com/park285/focus-party/internal/room"
	"github.com/park285/focus-party/internal/scoreboard"
	"github.com/park285/focus-party/pkg/partyproto"
)

// Prober is a dependency the health endpoint checks.
type Prober interface {
	Ping(ctx context.Context) error
}

// Probe names a backend and how to reach it.
type Probe struct {
	Name    string
	Backend string
	Target  Prober
}

type Options struct {
	RoomID         string
	AllowedOrigins []string
	HealthTimeout  time.Duration
	RateLimit      float64
	RateBurst      int
	Probes         []Probe
	Logger         *zap.Logger
}

type Server struct {
	room    *room.Room
	ws      http.Handler
	opts    Options
	log     *zap.Logger
	limiter *IPRateLimiter
	now     func() time.Time
}

func New(r *room.Room, ws http.Handler, opts Options) *Server {
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 3 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{
		room:    r,
		ws:      ws,
		opts:    opts,
		log:     opts.Logger,
		limiter: NewIPRateLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		now:     time.Now,
	}
}

// Router builds the gin engine serving /party/health and /party/chat.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())
	r.Use(cors.New(s.corsConfig()))

	party := r.Group("/party")
	party.GET("/health", s.health)

	chat := party.Group("/chat", s.limiter.Middleware())
	chat.GET("", s.getChat)
	chat.POST("", s.postChat)
	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Origin"},
		MaxAge:       12 * time.Hour,
	}
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http_request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// health never fails: probe errors are reported in the body and the status stays 200.
func (s *Server) health(c *gin.Context) {
	ctx := c.Request.Context()
	results := make(map[string]partyproto.ProbeResult, len(s.opts.Probes))
	status := "ok"
	for _, p := range s.opts.Probes {
		res := s.probe(ctx, p)
		if !res.OK {
			status = "degraded"
		}
		results[p.Name] = res
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.HealthTimeout)
	st := s.room.Stats(sctx)
	cancel()
	if len(st.Errors) > 0 {
		status = "degraded"
		s.log.Warn("health_stats_incomplete", zap.Any("errors", st.Errors))
	}
	c.JSON(http.StatusOK, partyproto.HealthResponse{
		Status:      status,
		Room:        s.opts.RoomID,
		Connections: st.Connections,
		Store:       results,
		Sizes: partyproto.HealthSizes{
			ChatLog:         st.ChatLogSize,
			RateLimiter:     st.RateLimiterSize,
			BanCache:        st.BanCacheSize,
			PendingScores:   st.Scores.Pending + st.Scores.InFlight,
			ScoreboardCache: st.Scores.CacheEntries,
			Errors:          st.Errors,
		},
		Time: s.now().UnixMilli(),
	})
}

func (s *Server) probe(ctx context.Context, p Probe) partyproto.ProbeResult {
	pctx, cancel := context.WithTimeout(ctx, s.opts.HealthTimeout)
	defer cancel()

	start := time.Now()
	errc := make(chan error, 1)
	go func() { errc <- p.Target.Ping(pctx) }()

	var err error
	select {
	case err = <-errc:
	case <-pctx.Done():
		err = pctx.Err()
	}
	res := partyproto.ProbeResult{OK: err == nil, Backend: p.Backend, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Error = err.Error()
		s.log.Warn("health_probe_failed", zap.String("probe", p.Name), zap.Error(err))
	}
	return res
}

func (s *Server) getChat(c *gin.Context) {
	if isWebsocketUpgrade(c.Request) {
		if s.ws == nil {
			c.JSON(http.StatusNotImplemented, partyproto.APIError{Error: "websocket disabled"})
			return
		}
		s.ws.ServeHTTP(c.Writer, c.Request)
		return
	}

	switch typ := c.Query("type"); typ {
	case partyproto.QueryGetUserScore:
		userID := strings.TrimSpace(c.Query("userId"))
		if userID == "" {
			c.JSON(http.StatusBadRequest, partyproto.APIError{Error: "userId is required"})
			return
		}
		score, err := s.room.Engine().UserScore(c.Request.Context(), userID)
		if err != nil {
			s.log.Error("user_score_failed", zap.String("user_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, partyproto.APIError{Error: "score lookup failed"})
			return
		}
		c.JSON(http.StatusOK, partyproto.UserScoreResponse{
			UserID: userID,
			Month:  domain.MonthKey(s.now()),
			Score:  score,
		})
	default:
		c.JSON(http.StatusBadRequest, partyproto.APIError{Error: "unsupported type: " + typ})
	}
}

func (s *Server) postChat(c *gin.Context) {
	var req partyproto.ScoreUpdateRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, partyproto.APIError{Error: "invalid JSON body"})
		return
	}
	if req.Type != partyproto.TypeUpdateScore {
		c.JSON(http.StatusBadRequest, partyproto.APIError{Error: "unsupported type: " + req.Type})
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		c.JSON(http.StatusBadRequest, partyproto.APIError{Error: "userId is required"})
		return
	}
	delta, err := partyproto.ParseDelta(req.Delta)
	if err != nil {
		c.JSON(http.StatusBadRequest, partyproto.APIError{Error: err.Error()})
		return
	}

	total, err := s.room.Engine().UpdateScore(c.Request.Context(), userID, strings.TrimSpace(req.Username), delta)
	switch {
	case err == nil:
	case errors.Is(err, scoreboard.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, partyproto.APIError{Error: "server shutting down"})
		return
	default:
		s.log.Error("score_update_failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, partyproto.APIError{Error: "score update failed"})
		return
	}
	_, pending := s.room.Engine().PendingScore(userID)
	c.JSON(http.StatusOK, partyproto.ScoreUpdateResponse{OK: true, UserID: userID, Score: total, Pending: pending})
}

func isWebsocketUpgrade(r *http.Request) bool {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	for _, v := range strings.Split(r.Header.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(v), "upgrade") {
			return true
		}
	}
	return false
}
