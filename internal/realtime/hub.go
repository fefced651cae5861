// Package realtime fans out board events to live subscriber connections.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrSubscriptionRequired is returned when a connection is registered
	// without a board.
	ErrSubscriptionRequired = errors.New("subscription required: board id missing")
	// ErrConnClosed is returned when sending to a connection that has gone away.
	ErrConnClosed = errors.New("connection closed")
)

// Conn is a live subscriber connection. Send must not block on a slow peer
// and must preserve call order for that connection.
type Conn interface {
	Send(ctx context.Context, msg []byte) error
	Closed() bool
}

// Hub maps board ids to their subscribers and broadcasts events to them.
// Each connection belongs to at most one board.
type Hub struct {
	mu     sync.RWMutex
	boards map[string]map[Conn]struct{}
	owner  map[Conn]string
	logger *slog.Logger
}

// NewHub creates an empty hub. A nil logger uses slog.Default().
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		boards: make(map[string]map[Conn]struct{}),
		owner:  make(map[Conn]string),
		logger: logger,
	}
}

// Subscribe registers c under boardID. A connection already registered under
// another board is moved.
func (h *Hub) Subscribe(boardID string, c Conn) error {
	if boardID == "" {
		return ErrSubscriptionRequired
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.owner[c]; ok {
		h.removeLocked(prev, c)
	}
	conns, ok := h.boards[boardID]
	if !ok {
		conns = make(map[Conn]struct{})
		h.boards[boardID] = conns
	}
	conns[c] = struct{}{}
	h.owner[c] = boardID
	h.logger.Debug("realtime: subscribed", "board", boardID, "subscribers", len(conns))
	return nil
}

// Unsubscribe removes c from whatever board it was under. It is safe to call
// more than once; it reports whether anything was removed.
func (h *Hub) Unsubscribe(c Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	boardID, ok := h.owner[c]
	if !ok {
		return false
	}
	h.removeLocked(boardID, c)
	h.logger.Debug("realtime: unsubscribed", "board", boardID)
	return true
}

func (h *Hub) removeLocked(boardID string, c Conn) {
	delete(h.owner, c)
	conns := h.boards[boardID]
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.boards, boardID)
	}
}

// Subscribers returns the number of connections registered under boardID.
func (h *Hub) Subscribers(boardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.boards[boardID])
}

// Publish serializes ev once and sends it to every open subscriber of
// boardID. Closed or failing connections are skipped and pruned; they never
// fail the publish. It returns the number of connections the event was
// handed to.
func (h *Hub) Publish(ctx context.Context, boardID string, ev Event) int {
	if ev.BoardID == "" {
		ev.BoardID = boardID
	}

	h.mu.RLock()
	conns := make([]Conn, 0, len(h.boards[boardID]))
	for c := range h.boards[boardID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return 0
	}

	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("realtime: encode event", "type", ev.Type, "error", err)
		return 0
	}

	delivered := 0
	var dead []Conn
	for _, c := range conns {
		if c.Closed() {
			dead = append(dead, c)
			continue
		}
		if err := c.Send(ctx, msg); err != nil {
			h.logger.Warn("realtime: dropping subscriber", "board", boardID, "type", ev.Type, "error", err)
			dead = append(dead, c)
			continue
		}
		delivered++
	}
	for _, c := range dead {
		h.Unsubscribe(c)
	}
	return delivered
}
