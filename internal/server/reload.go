package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// reloadHub tracks connected live-reload clients and broadcasts messages.
type reloadHub struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	logger *slog.Logger
}

func newReloadHub(logger *slog.Logger) *reloadHub {
	return &reloadHub{conns: map[*websocket.Conn]struct{}{}, logger: logger}
}

// handle upgrades the request and parks the connection until the client
// goes away. Clients never send anything meaningful; CloseRead discards
// their messages and signals disconnect.
func (h *reloadHub) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Dev-only server bound to localhost; cross-origin editors and
		// preview iframes are expected.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	ctx := conn.CloseRead(r.Context())
	<-ctx.Done()

	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// broadcast sends a text message to every connected client.
func (h *reloadHub) broadcast(msg string) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := c.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
			h.logger.Debug("live-reload write failed", "error", err)
		}
		cancel()
	}
}
