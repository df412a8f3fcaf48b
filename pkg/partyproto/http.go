package partyproto

import "encoding/json"

// Query/body type tags accepted by the HTTP control surface.
const (
	QueryGetUserScore = "get_user_score"
)

// ScoreUpdateRequest is the server-to-server body of POST /party/chat.
type ScoreUpdateRequest struct {
	Type     string          `json:"type"`
	UserID   string          `json:"userId"`
	Username string          `json:"username,omitempty"`
	Delta    json.RawMessage `json:"delta"`
}

type ScoreUpdateResponse struct {
	OK      bool   `json:"ok"`
	UserID  string `json:"userId"`
	Score   int64  `json:"score"`
	Pending bool   `json:"pending"`
}

type UserScoreResponse struct {
	UserID string `json:"userId"`
	Month  string `json:"month"`
	Score  int64  `json:"score"`
}

type ProbeResult struct {
	OK        bool   `json:"ok"`
	Backend   string `json:"backend"`
	LatencyMS int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

type HealthSizes struct {
	ChatLog         int               `json:"chatLog"`
	RateLimiter     int               `json:"rateLimiter"`
	BanCache        int               `json:"banCache"`
	PendingScores   int               `json:"pendingScores"`
	ScoreboardCache int               `json:"scoreboardCache"`
	Errors          map[string]string `json:"errors,omitempty"`
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Room        string                 `json:"room"`
	Connections int                    `json:"connections"`
	Store       map[string]ProbeResult `json:"store"`
	Sizes       HealthSizes            `json:"sizes"`
	Time        int64                  `json:"time"`
}

type APIError struct {
	Error string `json:"error"`
}
