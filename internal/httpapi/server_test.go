package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/focus-party/internal/ban"
	"github.com/park285/focus-party/internal/chatlog"
	"github.com/park285/focus-party/internal/domain"
	"github.com/park285/focus-party/internal/room"
	"github.com/park285/focus-party/internal/scoreboard"
	"github.com/park285/focus-party/pkg/partyproto"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type nopTimer struct{}

func (nopTimer) Stop() bool { return true }

// stalledChat blocks Len until the caller gives up.
type stalledChat struct {
	chatlog.Store
}

func (stalledChat) Len(ctx context.Context) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func newTestServer(t *testing.T, probes ...Probe) (*Server, *room.Room) {
	t.Helper()
	return newTestServerWith(t, chatlog.NewMemoryStore(chatlog.DefaultLimit), scoreboard.NewMemoryRepository(), probes...)
}

func newTestServerWith(t *testing.T, chat chatlog.Store, scores scoreboard.Repository, probes ...Probe) (*Server, *room.Room) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := room.New(room.Deps{
		Chat:   chat,
		Bans:   ban.NewChecker(ban.NewMemoryStore(), ban.NewCache(time.Minute)),
		Scores: scores,
		Config: room.Config{RoomID: "chat", ChatRateLimit: 20, ChatRateWindow: time.Minute},
		AfterFunc: func(time.Duration, func()) scoreboard.Timer {
			return nopTimer{}
		},
	})
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })
	return New(r, nil, Options{RoomID: "chat", HealthTimeout: 50 * time.Millisecond, Probes: probes}), r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthReportsProbeFailuresWith200(t *testing.T) {
	srv, _ := newTestServer(t,
		Probe{Name: "database", Backend: "postgres", Target: pingFunc(func(context.Context) error { return errors.New("connection refused") })},
		Probe{Name: "redis", Backend: "redis", Target: pingFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})},
	)
	w := do(t, srv.Router(), http.MethodGet, "/party/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got partyproto.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "degraded", got.Status)
	assert.Equal(t, "chat", got.Room)
	assert.Equal(t, "connection refused", got.Store["database"].Error)
	assert.False(t, got.Store["redis"].OK)
	assert.NotEmpty(t, got.Store["redis"].Error)
}

func TestUpdateScoreThenReadBack(t *testing.T) {
	srv, r := newTestServer(t)
	router := srv.Router()

	w := do(t, router, http.MethodPost, "/party/chat", `{"type":"update_score","userId":"u1","username":"Alice","delta":5}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var upd partyproto.ScoreUpdateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &upd))
	assert.Equal(t, partyproto.ScoreUpdateResponse{OK: true, UserID: "u1", Score: 5, Pending: true}, upd)

	w = do(t, router, http.MethodPost, "/party/chat", `{"type":"update_score","userId":"u1","delta":"3"}`)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, r.Engine().ProcessBatch(context.Background()))

	w = do(t, router, http.MethodGet, "/party/chat?type=get_user_score&userId=u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got partyproto.UserScoreResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(8), got.Score)
}

func TestHealthBoundsSlowChatLog(t *testing.T) {
	srv, _ := newTestServerWith(t, stalledChat{chatlog.NewMemoryStore(chatlog.DefaultLimit)}, scoreboard.NewMemoryRepository())

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- do(t, srv.Router(), http.MethodGet, "/party/health", "") }()

	var w *httptest.ResponseRecorder
	select {
	case w = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("health did not return within its timeout")
	}
	require.Equal(t, http.StatusOK, w.Code)
	var got partyproto.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "degraded", got.Status)
	assert.Contains(t, got.Sizes.Errors, "chatLog")
}

func TestUpdateScoreWithoutUsernameKeepsStoredName(t *testing.T) {
	scores := scoreboard.NewMemoryRepository()
	month := domain.MonthKey(time.Now())
	require.NoError(t, scores.UpsertBatch(context.Background(), []domain.ScoreboardEntry{
		{UserID: "u1", Username: "Alice", Score: 10, Month: month, Region: "global"},
	}))
	srv, r := newTestServerWith(t, chatlog.NewMemoryStore(chatlog.DefaultLimit), scores)

	w := do(t, srv.Router(), http.MethodPost, "/party/chat", `{"type":"update_score","userId":"u1","delta":5}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, r.Engine().ProcessBatch(context.Background()))

	board, err := scores.Month(context.Background(), month)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, "Alice", board[0].Username)
	assert.Equal(t, int64(15), board[0].Score)
}

func TestUserScoreDefaultsToZero(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Router(), http.MethodGet, "/party/chat?type=get_user_score&userId=nobody", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"score":0`)
}

func TestBadRequests(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	cases := []struct {
		name, method, target, body string
	}{
		{"unknown query type", http.MethodGet, "/party/chat?type=nope", ""},
		{"missing user", http.MethodGet, "/party/chat?type=get_user_score", ""},
		{"bad json", http.MethodPost, "/party/chat", `{`},
		{"wrong type", http.MethodPost, "/party/chat", `{"type":"chat","userId":"u1","delta":1}`},
		{"missing delta", http.MethodPost, "/party/chat", `{"type":"update_score","userId":"u1"}`},
		{"missing user id", http.MethodPost, "/party/chat", `{"type":"update_score","delta":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, router, tc.method, tc.target, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	l := NewIPRateLimiter(1, 2)
	now := time.Unix(1_700_000_000, 0)
	assert.True(t, l.Allow("1.1.1.1", now))
	assert.True(t, l.Allow("1.1.1.1", now))
	assert.False(t, l.Allow("1.1.1.1", now))
	assert.True(t, l.Allow("2.2.2.2", now))
	assert.True(t, l.Allow("1.1.1.1", now.Add(time.Second)))

	l.Sweep(now.Add(time.Hour))
	assert.Zero(t, l.Size())
}
