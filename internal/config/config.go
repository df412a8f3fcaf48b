package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	ListenAddr string
	RoomID     string
	Region     string

	RedisURL    string
	DatabaseURL string

	ModerationURL       string
	ModerationAPIKey    string
	ModerationBlocklist []string
	ModerationTimeout   time.Duration

	DebugKey       string
	AllowedOrigins []string
	MessagesDir    string

	ChatRateLimit    int
	ChatRateWindow   time.Duration
	WarningThreshold int
	BanCacheTTL      time.Duration
	ChatHistoryLimit int

	ScoreFlushInterval time.Duration
	ScoreboardCacheTTL time.Duration

	HealthTimeout time.Duration
	HTTPRateLimit float64
	HTTPRateBurst int
}

// Default returns the configuration used when no environment overrides are set.
func Default() *AppConfig {
	return &AppConfig{
		ListenAddr:         ":8080",
		RoomID:             "chat",
		Region:             "global",
		ModerationTimeout:  3 * time.Second,
		AllowedOrigins:     []string{"*"},
		ChatRateLimit:      20,
		ChatRateWindow:     60 * time.Second,
		WarningThreshold:   3,
		BanCacheTTL:        60 * time.Second,
		ChatHistoryLimit:   1000,
		ScoreFlushInterval: 5 * time.Second,
		ScoreboardCacheTTL: 60 * time.Second,
		HealthTimeout:      3 * time.Second,
		HTTPRateLimit:      10,
		HTTPRateBurst:      20,
	}
}

// Load reads an optional .env file and then the process environment.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()
	cfg := FromEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a config from an env lookup function. Unparseable values keep their defaults.
func FromEnv(getenv func(string) string) *AppConfig {
	cfg := Default()
	get := func(k string) string { return strings.TrimSpace(getenv(k)) }

	if v := get("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	} else if v := get("PORT"); v != "" {
		cfg.ListenAddr = ":" + v
	}
	if v := get("ROOM_ID"); v != "" {
		cfg.RoomID = v
	}
	if v := get("REGION"); v != "" {
		cfg.Region = v
	}

	cfg.RedisURL = get("REDIS_URL")
	cfg.DatabaseURL = get("DATABASE_URL")
	cfg.ModerationURL = get("MODERATION_URL")
	cfg.ModerationAPIKey = get("MODERATION_API_KEY")
	cfg.ModerationBlocklist = splitList(get("MODERATION_BLOCKLIST"))
	cfg.DebugKey = get("DEBUG_KEY")
	cfg.MessagesDir = get("MESSAGES_DIR")

	if origins := splitList(get("ALLOWED_ORIGINS")); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}

	if n, ok := positiveInt(get("MODERATION_TIMEOUT_MS")); ok {
		cfg.ModerationTimeout = time.Duration(n) * time.Millisecond
	}
	if n, ok := positiveInt(get("CHAT_RATE_LIMIT")); ok {
		cfg.ChatRateLimit = n
	}
	if n, ok := positiveInt(get("CHAT_RATE_WINDOW_SEC")); ok {
		cfg.ChatRateWindow = time.Duration(n) * time.Second
	}
	if n, ok := positiveInt(get("WARNING_THRESHOLD")); ok {
		cfg.WarningThreshold = n
	}
	if n, ok := positiveInt(get("BAN_CACHE_TTL_SEC")); ok {
		cfg.BanCacheTTL = time.Duration(n) * time.Second
	}
	if n, ok := positiveInt(get("CHAT_HISTORY_LIMIT")); ok {
		cfg.ChatHistoryLimit = n
	}
	if n, ok := positiveInt(get("SCORE_FLUSH_INTERVAL_MS")); ok {
		cfg.ScoreFlushInterval = time.Duration(n) * time.Millisecond
	}
	if n, ok := positiveInt(get("SCOREBOARD_CACHE_TTL_SEC")); ok {
		cfg.ScoreboardCacheTTL = time.Duration(n) * time.Second
	}
	if n, ok := positiveInt(get("HEALTH_TIMEOUT_MS")); ok {
		cfg.HealthTimeout = time.Duration(n) * time.Millisecond
	}
	if v := get("HTTP_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.HTTPRateLimit = f
		}
	}
	if n, ok := positiveInt(get("HTTP_RATE_BURST")); ok {
		cfg.HTTPRateBurst = n
	}
	return cfg
}

func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.RoomID) == "" {
		return errors.New("ROOM_ID must not be empty")
	}
	if c.ChatHistoryLimit <= 0 {
		return errors.New("CHAT_HISTORY_LIMIT must be positive")
	}
	if c.WarningThreshold <= 0 {
		return errors.New("WARNING_THRESHOLD must be positive")
	}
	if c.ScoreFlushInterval <= 0 {
		return errors.New("SCORE_FLUSH_INTERVAL_MS must be positive")
	}
	return nil
}

func positiveInt(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
