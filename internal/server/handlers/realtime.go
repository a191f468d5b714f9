package handlers

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/lane711/sonicjs/internal/server/events"
	ws "github.com/lane711/sonicjs/internal/server/websocket"
)

var clientSeq atomic.Uint64

// HandleWebSocket handles GET /admin/events/ws.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(fmt.Sprintf("ws-%d", clientSeq.Add(1)), h.WSHub, conn)
	h.WSHub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	h.WSHub.Broadcast(ws.Message{
		Type:      string(events.ClientConnected),
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"client_id": client.ID()},
	})
}

// HandleSSE handles GET /admin/events/stream.
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.SSEBroadcaster.ServeHTTP(w, r)
}
