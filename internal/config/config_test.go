package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv(envMap(nil))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 20, cfg.ChatRateLimit)
	assert.Equal(t, time.Minute, cfg.ChatRateWindow)
	assert.Equal(t, 3, cfg.WarningThreshold)
	assert.Equal(t, 1000, cfg.ChatHistoryLimit)
	assert.Equal(t, 5*time.Second, cfg.ScoreFlushInterval)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg := FromEnv(envMap(map[string]string{
		"PORT":                    "9090",
		"DEBUG_KEY":               " s3cret ",
		"MODERATION_BLOCKLIST":    "foo, bar,,",
		"MODERATION_API_KEY":      "mod-key",
		"CHAT_RATE_LIMIT":         "5",
		"SCORE_FLUSH_INTERVAL_MS": "250",
		"ALLOWED_ORIGINS":         "https://a.example,https://b.example",
	}))
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "s3cret", cfg.DebugKey)
	assert.Equal(t, []string{"foo", "bar"}, cfg.ModerationBlocklist)
	assert.Equal(t, "mod-key", cfg.ModerationAPIKey)
	assert.Equal(t, 5, cfg.ChatRateLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.ScoreFlushInterval)
	assert.Len(t, cfg.AllowedOrigins, 2)
}

func TestFromEnvIgnoresInvalidNumbers(t *testing.T) {
	cfg := FromEnv(envMap(map[string]string{
		"CHAT_RATE_LIMIT":    "-3",
		"WARNING_THRESHOLD":  "abc",
		"CHAT_HISTORY_LIMIT": "0",
	}))
	assert.Equal(t, 20, cfg.ChatRateLimit)
	assert.Equal(t, 3, cfg.WarningThreshold)
	assert.Equal(t, 1000, cfg.ChatHistoryLimit)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.ChatHistoryLimit = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.RoomID = " "
	assert.Error(t, cfg.Validate())
}
