package handlers

import (
	"net/http"

	"github.com/lane711/sonicjs/internal/analytics"
	"github.com/lane711/sonicjs/internal/server/response"
)

const defaultTopKeys = 10

// HandleCacheHealth handles GET /admin/cache/health.
func (h *Handlers) HandleCacheHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, h.Analyzer.Health())
}

// HandleAnalytics handles GET /admin/cache/analytics.
func (h *Handlers) HandleAnalytics(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, h.Analyzer.Analyze())
}

// HandleTrends handles GET /admin/cache/analytics/trends.
func (h *Handlers) HandleTrends(w http.ResponseWriter, _ *http.Request) {
	trends := []analytics.Sample{}
	if h.Recorder != nil {
		trends = h.Recorder.Trends()
	}
	response.OK(w, map[string]any{"trends": trends})
}

// HandleTopKeys handles GET /admin/cache/analytics/top-keys.
func (h *Handlers) HandleTopKeys(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultTopKeys)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	top, err := h.Analyzer.TopKeys(limit)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, map[string]any{
		"topKeys": top,
		"note":    analytics.TopKeysNote,
	})
}
