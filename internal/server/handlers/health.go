package handlers

import (
	"net/http"
	"time"

	"github.com/lane711/sonicjs/internal/plugins"
	"github.com/lane711/sonicjs/internal/server/response"
)

// HandleHealth handles GET /health (liveness).
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "healthy",
		"service": "sonicjs-admin",
		"uptime":  time.Since(h.StartTime).Round(time.Second).String(),
	})
}

// HandleReady handles GET /ready. The server is ready once the core
// plugins are active.
func (h *Handlers) HandleReady(w http.ResponseWriter, _ *http.Request) {
	for _, p := range h.Plugins.List(plugins.ListFilter{}) {
		if p.IsCore && p.Status != plugins.StatusActive {
			response.ServiceUnavailable(w, "Core plugin "+p.ID+" is not active")
			return
		}
	}

	total := h.Cache.TotalStats()
	response.OK(w, map[string]any{
		"status": "ready",
		"cache": map[string]any{
			"namespaces": len(h.Cache.Namespaces()),
			"entries":    total.EntryCount,
		},
		"plugins":           h.Plugins.Stats(),
		"hooks":             h.Registry.Stats().TotalSubscriptions,
		"websocket_clients": h.WSHub.ClientCount(),
		"sse_clients":       h.SSEBroadcaster.ClientCount(),
	})
}
