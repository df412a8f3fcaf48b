package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"nhooyr.io/websocket"

	"github.com/park285/focus-party/pkg/partyproto"
)

func main() {
	baseURL := flag.String("url", envOr("PARTY_BASE_URL", "http://localhost:8080"), "party server base URL")
	userID := flag.String("user", "", "post a zero score update and read back this user's score")
	watch := flag.Duration("watch", 0, "observe the websocket for this long")
	flag.Parse()

	base := strings.TrimRight(*baseURL, "/")
	client := &fasthttp.Client{ReadTimeout: 8 * time.Second, WriteTimeout: 8 * time.Second}

	var health partyproto.HealthResponse
	if err := getJSON(client, base+"/party/health", &health); err != nil {
		log.Fatalf("/party/health error: %v", err)
	}
	log.Printf("/party/health %s: room=%s connections=%d pending=%d chatlog=%d",
		health.Status, health.Room, health.Connections, health.Sizes.PendingScores, health.Sizes.ChatLog)
	for name, p := range health.Store {
		if p.OK {
			log.Printf("  %s (%s) ok in %dms", name, p.Backend, p.LatencyMS)
		} else {
			log.Printf("  %s (%s) FAILED: %s", name, p.Backend, p.Error)
		}
	}

	if *userID != "" {
		body, _ := json.Marshal(map[string]any{"type": partyproto.TypeUpdateScore, "userId": *userID, "delta": 0})
		var upd partyproto.ScoreUpdateResponse
		if err := postJSON(client, base+"/party/chat", body, &upd); err != nil {
			log.Printf("update_score error: %v", err)
		} else {
			log.Printf("update_score ok: user=%s pending total=%d", upd.UserID, upd.Score)
		}
		var us partyproto.UserScoreResponse
		if err := getJSON(client, base+"/party/chat?type=get_user_score&userId="+*userID, &us); err != nil {
			log.Printf("get_user_score error: %v", err)
		} else {
			log.Printf("get_user_score ok: user=%s month=%s score=%d", us.UserID, us.Month, us.Score)
		}
	}

	if *watch <= 0 {
		return
	}
	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/party/chat"
	ctx, cancel := context.WithTimeout(context.Background(), *watch)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		fmt.Printf("WS frame: %s\n", data)
	}
}

func getJSON(c *fasthttp.Client, url string, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	return do(c, req, resp, out)
}

func postJSON(c *fasthttp.Client, url string, body []byte, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)
	return do(c, req, resp, out)
}

func do(c *fasthttp.Client, req *fasthttp.Request, resp *fasthttp.Response, out any) error {
	if err := c.DoTimeout(req, resp, 8*time.Second); err != nil {
		return err
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return fmt.Errorf("status=%d body=%s", code, resp.Body())
	}
	return json.Unmarshal(resp.Body(), out)
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
