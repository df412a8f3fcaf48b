package domain

import (
	"time"
)

// AnonymousName is the display name of a session before update_profile or hello sets one.
const AnonymousName = "Anonymous"

// ChatMessage is immutable once created; the log only ever prunes it.
type ChatMessage struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// NewChatMessage stamps a chat message with the given time.
func NewChatMessage(from, text string, at time.Time) ChatMessage {
	return ChatMessage{Type: "chat", From: from, Text: text, Timestamp: at.UnixMilli()}
}

// ScoreboardEntry is one (user, month) row of the ranking.
type ScoreboardEntry struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Score    int64  `json:"score"`
	Month    string `json:"month"`
	Region   string `json:"region"`
}

// PendingScore is a queued, already-applied total waiting for the next flush.
type PendingScore struct {
	Username string
	Score    int64
	// Month is the partition the total was computed against.
	Month     string
	Timestamp time.Time
}

// BanRecord mirrors a row of the banned table.
type BanRecord struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

// MonthKey returns the YYYY-MM partition key for t in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// ClampScore applies delta to old and floors the result at zero.
func ClampScore(old, delta int64) int64 {
	if n := old + delta; n > 0 {
		return n
	}
	return 0
}
