package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/focus-party/internal/room"
)

// Handler is the room surface a websocket connection drives.
type Handler interface {
	Join(ctx context.Context, conn room.Conn) (*room.Session, error)
	Handle(ctx context.Context, s *room.Session, raw []byte)
	Leave(ctx context.Context, s *room.Session)
}

type Options struct {
	OriginPatterns []string
	ReadLimit      int64
	// SendQueue must hold a full history replay plus the scoreboard snapshot.
	SendQueue    int
	WriteTimeout time.Duration
	PingInterval time.Duration
	Logger       *zap.Logger
}

func (o *Options) defaults() {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 4 << 10
	}
	if o.SendQueue <= 0 {
		o.SendQueue = 2048
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Server upgrades HTTP requests to websockets and pumps frames to and from the room.
type Server struct {
	h    Handler
	opts Options
}

func NewServer(h Handler, opts Options) *Server {
	opts.defaults()
	return &Server{h: h, opts: opts}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	accept := &websocket.AcceptOptions{CompressionMode: websocket.CompressionNoContextTakeover}
	for _, o := range s.opts.OriginPatterns {
		if o == "*" {
			accept.InsecureSkipVerify = true
			break
		}
	}
	if !accept.InsecureSkipVerify {
		accept.OriginPatterns = s.opts.OriginPatterns
	}

	c, err := websocket.Accept(w, r, accept)
	if err != nil {
		s.opts.Logger.Debug("ws_accept_failed", zap.Error(err))
		return
	}
	c.SetReadLimit(s.opts.ReadLimit)
	s.serve(r.Context(), c)
}

func (s *Server) serve(parent context.Context, c *websocket.Conn) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	wc := newConn(c, s.opts.SendQueue)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writeLoop(ctx, wc)
	}()
	go func() {
		defer wg.Done()
		s.pingLoop(ctx, wc)
	}()

	sess, err := s.h.Join(ctx, wc)
	if err != nil {
		wc.Close("join rejected")
		wg.Wait()
		return
	}

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		s.h.Handle(ctx, sess, data)
	}

	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	s.h.Leave(leaveCtx, sess)
	leaveCancel()

	wc.Close("read closed")
	wg.Wait()
}

func (s *Server) writeLoop(ctx context.Context, wc *conn) {
	write := func(frame []byte) error {
		wctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
		defer cancel()
		return wc.ws.Write(wctx, websocket.MessageText, frame)
	}
	for {
		select {
		case <-ctx.Done():
			_ = wc.ws.Close(websocket.StatusGoingAway, "")
			return
		case frame := <-wc.out:
			if err := write(frame); err != nil {
				s.opts.Logger.Debug("ws_write_failed", zap.Error(err))
				wc.Close("write failed")
			}
		case <-wc.done:
			// flush what was queued before the close, e.g. a final error frame
		drain:
			for {
				select {
				case frame := <-wc.out:
					if write(frame) != nil {
						break drain
					}
				default:
					break drain
				}
			}
			_ = wc.ws.Close(websocket.StatusNormalClosure, wc.reason())
			return
		}
	}
}

func (s *Server) pingLoop(ctx context.Context, wc *conn) {
	t := time.NewTicker(s.opts.PingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-wc.done:
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := wc.ws.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				wc.Close("ping failure")
				return
			}
		}
	}
}

// conn adapts a websocket to room.Conn. Send and Close never block so they are safe on the room executor.
type conn struct {
	ws   *websocket.Conn
	out  chan []byte
	done chan struct{}

	once sync.Once
	mu   sync.Mutex
	why  string
}

func newConn(ws *websocket.Conn, queue int) *conn {
	return &conn{ws: ws, out: make(chan []byte, queue), done: make(chan struct{})}
}

func (c *conn) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

func (c *conn) Close(reason string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.why = reason
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *conn) reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.why
}
