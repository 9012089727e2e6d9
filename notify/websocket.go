package notify

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"
)

// Hub pushes messages as JSON to the open websocket connections of a user.
// Users without connections miss the message.
type Hub struct {
	Logger *zap.Logger

	mu    sync.Mutex
	conns map[int]map[*websocket.Conn]struct{}
}

// Serve registers the connection and blocks until the client closes it. Incoming frames are discarded.
func (h *Hub) Serve(userID int, ws *websocket.Conn) {

	h.mu.Lock()
	if h.conns == nil {
		h.conns = make(map[int]map[*websocket.Conn]struct{})
	}
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]struct{})
	}
	h.conns[userID][ws] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns[userID], ws)
		if len(h.conns[userID]) == 0 {
			delete(h.conns, userID)
		}
		h.mu.Unlock()
		ws.Close()
	}()

	var discard string
	for {
		if err := websocket.Message.Receive(ws, &discard); err != nil {
			return
		}
	}
}

// Connections returns the number of open connections of the user.
func (h *Hub) Connections(userID int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID])
}

func (h *Hub) Push(ctx context.Context, userID int, m Message) error {

	h.mu.Lock()
	var conns = make([]*websocket.Conn, 0, len(h.conns[userID]))
	for ws := range h.conns[userID] {
		conns = append(conns, ws)
	}
	h.mu.Unlock()

	var errs error
	for _, ws := range conns {
		if deadline, ok := ctx.Deadline(); ok {
			ws.SetWriteDeadline(deadline)
		}
		if err := websocket.JSON.Send(ws, m); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}
