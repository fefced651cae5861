package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ErrSlowSubscriber is returned when a connection's outbound queue is full.
var ErrSlowSubscriber = errors.New("subscriber outbound queue full")

// Options configures the websocket subscription endpoint.
type Options struct {
	// AllowedOrigins are host patterns accepted for cross-origin upgrades.
	// Same-origin requests are always accepted.
	AllowedOrigins []string
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
	// Now is the clock used for pong timestamps.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Handler upgrades HTTP requests to websocket subscriptions on a Hub. The
// board is taken from the boardId query parameter or the X-Board-Id header.
type Handler struct {
	hub    *Hub
	opts   Options
	logger *slog.Logger
}

// NewHandler creates the subscription endpoint. A nil logger uses slog.Default().
func NewHandler(hub *Hub, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hub: hub, opts: opts.withDefaults(), logger: logger}
}

func boardFromRequest(r *http.Request) string {
	if id := r.URL.Query().Get("boardId"); id != "" {
		return id
	}
	return r.Header.Get("X-Board-Id")
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	boardID := boardFromRequest(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.AllowedOrigins,
	})
	if err != nil {
		h.logger.Warn("ws: upgrade failed", "error", err)
		return
	}

	c := newWSConn(conn, h.opts.SendBuffer, h.opts.WriteTimeout)
	if err := h.hub.Subscribe(boardID, c); err != nil {
		h.logger.Info("ws: rejecting connection", "error", err)
		c.shutdown()
		_ = conn.Close(websocket.StatusPolicyViolation, "subscription required")
		return
	}
	h.logger.Info("ws: client connected", "board", boardID)

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		h.hub.Unsubscribe(c)
		c.shutdown()
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		h.logger.Info("ws: client disconnected", "board", boardID)
	}()

	go c.writeLoop(ctx)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				h.logger.Debug("ws: read error", "board", boardID, "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			reply, err := json.Marshal(newPong(h.opts.Now()))
			if err != nil {
				continue
			}
			if err := c.Send(ctx, reply); err != nil {
				return
			}
		}
	}
}

// wsConn queues outbound frames and writes them from a single goroutine, so
// frames reach the peer in Send order.
type wsConn struct {
	conn         *websocket.Conn
	out          chan []byte
	done         chan struct{}
	once         sync.Once
	writeTimeout time.Duration
}

var _ Conn = (*wsConn)(nil)

func newWSConn(conn *websocket.Conn, buffer int, writeTimeout time.Duration) *wsConn {
	return &wsConn{
		conn:         conn,
		out:          make(chan []byte, buffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

// Send enqueues msg without blocking. A full queue closes the connection.
func (c *wsConn) Send(_ context.Context, msg []byte) error {
	if c.Closed() {
		return ErrConnClosed
	}
	select {
	case c.out <- msg:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		if c.shutdown() {
			go func() { _ = c.conn.Close(websocket.StatusPolicyViolation, "subscriber too slow") }()
		}
		return ErrSlowSubscriber
	}
}

func (c *wsConn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// shutdown marks the connection closed. It reports whether this call did it.
func (c *wsConn) shutdown() bool {
	first := false
	c.once.Do(func() {
		close(c.done)
		first = true
	})
	return first
}

func (c *wsConn) writeLoop(ctx context.Context) {
	for {
		select {
		case msg := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				c.shutdown()
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
