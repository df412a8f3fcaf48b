package partyproto

import (
	"encoding/json"

	"github.com/park285/focus-party/internal/domain"
)

// Server frame type tags.
const (
	FrameChat       = "chat"
	FrameScoreboard = "scoreboard"
	FrameError      = "error"
	FrameDebugState = "debug_state"
)

type ScoreboardFrame struct {
	Type       string                   `json:"type"`
	Scoreboard []domain.ScoreboardEntry `json:"scoreboard"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SessionView is the debug rendering of one live connection.
type SessionView struct {
	ID           string `json:"id"`
	UserID       string `json:"userId,omitempty"`
	Username     string `json:"username"`
	Task         string `json:"task,omitempty"`
	Role         string `json:"role,omitempty"`
	WarningCount int    `json:"warningCount"`
	Bound        bool   `json:"hasSetValidUserId"`
}

type DebugState struct {
	Connections     int           `json:"connections"`
	Sessions        []SessionView `json:"sessions"`
	ChatLogSize     int           `json:"chatLogSize"`
	RateLimiterSize int           `json:"rateLimiterSize"`
	BanCacheSize    int           `json:"banCacheSize"`
	PendingScores   int           `json:"pendingScores"`
	ScoreCacheSize  int           `json:"scoreboardCacheSize"`
	FlushTimerArmed bool          `json:"flushTimerArmed"`
	ShuttingDown    bool          `json:"shuttingDown"`
	Action          string        `json:"action,omitempty"`
}

type DebugStateFrame struct {
	Type string `json:"type"`
	DebugState
}

// Frame encoders never fail for these concrete types; the error is dropped on purpose
// so call sites stay single-line.

func EncodeChat(m domain.ChatMessage) []byte {
	m.Type = FrameChat
	b, _ := json.Marshal(m)
	return b
}

func EncodeScoreboard(entries []domain.ScoreboardEntry) []byte {
	if entries == nil {
		entries = []domain.ScoreboardEntry{}
	}
	b, _ := json.Marshal(ScoreboardFrame{Type: FrameScoreboard, Scoreboard: entries})
	return b
}

func EncodeError(message string) []byte {
	b, _ := json.Marshal(ErrorFrame{Type: FrameError, Message: message})
	return b
}

func EncodeDebugState(s DebugState) []byte {
	if s.Sessions == nil {
		s.Sessions = []SessionView{}
	}
	b, _ := json.Marshal(DebugStateFrame{Type: FrameDebugState, DebugState: s})
	return b
}
