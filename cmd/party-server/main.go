package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/focus-party/internal/ban"
	"github.com/park285/focus-party/internal/chatlog"
	appcfg "github.com/park285/focus-party/internal/config"
	"github.com/park285/focus-party/internal/httpapi"
	"github.com/park285/focus-party/internal/moderation"
	"github.com/park285/focus-party/internal/msgcat"
	"github.com/park285/focus-party/internal/obslog"
	"github.com/park285/focus-party/internal/pgstore"
	"github.com/park285/focus-party/internal/room"
	"github.com/park285/focus-party/internal/scoreboard"
	"github.com/park285/focus-party/internal/transport"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.Named("party-server")

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	ctx := context.Background()
	var probes []httpapi.Probe

	// Relational store: scoreboard + bans
	var (
		db       *sql.DB
		scores   scoreboard.Repository
		banStore ban.Store
	)
	if cfg.DatabaseURL != "" {
		db, err = pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres init error: %v", err)
		}
		if err := pgstore.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("postgres schema error: %v", err)
		}
		scores = scoreboard.NewRepository(db)
		banStore = ban.NewRepository(db)
		probes = append(probes, httpapi.Probe{Name: "database", Backend: "postgres", Target: scores})
	} else {
		logger.Warn("database_disabled", zap.String("reason", "DATABASE_URL not set; scores and bans kept in memory"))
		scores = scoreboard.NewMemoryRepository()
		banStore = ban.NewMemoryStore()
		probes = append(probes, httpapi.Probe{Name: "database", Backend: "memory", Target: scores})
	}

	// Chat log: Redis when configured
	var (
		rdb  *redis.Client
		chat chatlog.Store
	)
	if cfg.RedisURL != "" {
		opts, err := chatlog.ParseRedisURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url error: %v", err)
		}
		rdb = redis.NewClient(opts)
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		chat = chatlog.NewRedisStore(rdb, cfg.RoomID, cfg.ChatHistoryLimit)
		probes = append(probes, httpapi.Probe{Name: "redis", Backend: "redis", Target: chat})
	} else {
		logger.Warn("redis_disabled", zap.String("reason", "REDIS_URL not set; chat history kept in memory"))
		chat = chatlog.NewMemoryStore(cfg.ChatHistoryLimit)
	}

	gate := buildGate(cfg, logger)

	rm := room.New(room.Deps{
		Chat:    chat,
		Bans:    ban.NewChecker(banStore, ban.NewCache(cfg.BanCacheTTL)),
		Gate:    gate,
		Scores:  scores,
		Catalog: catalog,
		Logger:  obslog.Named("room"),
		Config: room.Config{
			RoomID:           cfg.RoomID,
			Region:           cfg.Region,
			DebugKey:         cfg.DebugKey,
			ChatRateLimit:    cfg.ChatRateLimit,
			ChatRateWindow:   cfg.ChatRateWindow,
			WarningThreshold: cfg.WarningThreshold,
			FlushInterval:    cfg.ScoreFlushInterval,
			CacheTTL:         cfg.ScoreboardCacheTTL,
		},
	})

	ws := transport.NewServer(rm, transport.Options{
		OriginPatterns: cfg.AllowedOrigins,
		SendQueue:      cfg.ChatHistoryLimit + 64,
		Logger:         obslog.Named("ws"),
	})
	api := httpapi.New(rm, ws, httpapi.Options{
		RoomID:         cfg.RoomID,
		AllowedOrigins: cfg.AllowedOrigins,
		HealthTimeout:  cfg.HealthTimeout,
		RateLimit:      cfg.HTTPRateLimit,
		RateBurst:      cfg.HTTPRateBurst,
		Probes:         probes,
		Logger:         obslog.Named("http"),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr), zap.String("room", cfg.RoomID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http_server_failed", zap.Error(err))
		}
	}()

	// Wait for termination signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting_down")

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	// Drain the room first so queued scores reach the store and clients see the shutdown error.
	if err := rm.Shutdown(sctx); err != nil {
		logger.Error("room_shutdown_failed", zap.Error(err))
	}
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error("http_shutdown_failed", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if db != nil {
		_ = db.Close()
	}
}

func buildGate(cfg *appcfg.AppConfig, logger *zap.Logger) moderation.Gate {
	var chain moderation.Chain
	if len(cfg.ModerationBlocklist) > 0 {
		chain = append(chain, moderation.NewBlocklist(cfg.ModerationBlocklist))
	}
	if cfg.ModerationURL != "" {
		chain = append(chain, moderation.NewClient(cfg.ModerationURL,
			moderation.WithTimeout(cfg.ModerationTimeout),
			moderation.WithAPIKey(cfg.ModerationAPIKey),
		))
	}
	if len(chain) == 0 {
		logger.Warn("moderation_disabled")
		return moderation.Allow{}
	}
	return moderation.FailOpen(chain, logger.Named("moderation"))
}
