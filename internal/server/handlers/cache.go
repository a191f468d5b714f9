package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/lane711/sonicjs/internal/cache"
	"github.com/lane711/sonicjs/internal/server/response"
	"github.com/lane711/sonicjs/pkg/constants"
	"github.com/lane711/sonicjs/pkg/errors"
	"github.com/lane711/sonicjs/pkg/logging"
)

// HandleCacheStats handles GET /admin/cache/stats.
func (h *Handlers) HandleCacheStats(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, h.Cache.AllStats())
}

// HandleNamespaceStats handles GET /admin/cache/stats/{namespace}.
func (h *Handlers) HandleNamespaceStats(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("namespace")
	cfg, err := h.Cache.Config(ns)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	stats, err := h.Cache.Stats(ns)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, map[string]any{
		"namespace": ns,
		"config":    cfg,
		"stats":     stats,
	})
}

// HandleClearAll handles POST /admin/cache/clear.
func (h *Handlers) HandleClearAll(w http.ResponseWriter, _ *http.Request) {
	n := h.Cache.ClearAll()
	h.Logger.Info().Int("cleared", n).Msg("All cache entries cleared")
	response.Fields(w, map[string]any{
		"message": "All cache entries cleared",
		"cleared": n,
	})
}

// HandleClearNamespace handles POST /admin/cache/clear/{namespace}.
func (h *Handlers) HandleClearNamespace(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("namespace")
	n, err := h.Cache.Clear(ns)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	logging.FromContext(logging.WithNamespace(r.Context(), ns)).Info().Int("cleared", n).Msg("Cache namespace cleared")
	response.Fields(w, map[string]any{
		"message":   "Cache cleared for namespace: " + ns,
		"namespace": ns,
		"cleared":   n,
	})
}

type invalidateRequest struct {
	Pattern   string `json:"pattern"`
	Namespace string `json:"namespace"`
	Regex     bool   `json:"regex"`
}

// HandleInvalidate handles POST /admin/cache/invalidate. Without a
// namespace the pattern is applied to every namespace. Patterns are globs
// unless regex is set.
func (h *Handlers) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := decodeJSON(r, &req); err != nil {
		response.ErrorFromType(w, err)
		return
	}

	invalidate := h.Cache.Invalidate
	if req.Regex {
		invalidate = h.Cache.InvalidateRegex
	}
	n, err := invalidate(req.Pattern, req.Namespace)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	ns := req.Namespace
	if ns == "" {
		ns = "all"
	}
	ctx := logging.WithNamespace(logging.WithOperation(r.Context(), "invalidate"), ns)
	logging.FromContext(ctx).Info().
		Str("pattern", req.Pattern).
		Bool("regex", req.Regex).
		Int("invalidated", n).
		Msg("Cache invalidated")
	response.Fields(w, map[string]any{
		"invalidated": n,
		"pattern":     req.Pattern,
		"regex":       req.Regex,
		"namespace":   ns,
	})
}

// HandleBrowse handles GET /admin/cache/browser.
// Query: namespace, search, sort (size|key|age|hits), limit.
func (h *Handlers) HandleBrowse(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", constants.DefaultBrowseLimit)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	q := r.URL.Query()
	f := cache.Filter{
		Namespace: q.Get("namespace"),
		Search:    q.Get("search"),
		SortBy:    q.Get("sort"),
		Limit:     limit,
	}
	if f.SortBy == "" {
		f.SortBy = q.Get("sortBy")
	}

	result, err := h.Cache.Browse(f)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	data := map[string]any{
		"entries": result.Entries,
		"total":   result.Total,
		"showing": result.Showing,
	}
	if f.Namespace != "" {
		data["namespace"] = f.Namespace
	}
	if f.Search != "" {
		data["search"] = f.Search
	}
	if f.SortBy != "" {
		data["sortBy"] = f.SortBy
	}
	response.OK(w, data)
}

// HandleEntry handles GET /admin/cache/browser/{namespace}/{key}.
func (h *Handlers) HandleEntry(w http.ResponseWriter, r *http.Request) {
	info, err := h.Cache.Entry(r.PathValue("namespace"), r.PathValue("key"))
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, info)
}

// warmItem accepts the value under either "value" or "data".
type warmItem struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	Data  any    `json:"data"`
	TTL   int    `json:"ttl"`
}

type warmRequest struct {
	Entries json.RawMessage `json:"entries"`
}

// HandleWarm handles POST /admin/cache/warm/{namespace}.
func (h *Handlers) HandleWarm(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("namespace")

	var req warmRequest
	if err := decodeJSON(r, &req); err != nil {
		response.ErrorFromType(w, err)
		return
	}

	var entries []cache.WarmEntry
	if len(req.Entries) > 0 && string(req.Entries) != "null" {
		var items []warmItem
		if err := json.Unmarshal(req.Entries, &items); err != nil {
			response.ErrorFromType(w, errors.NewValidationError("entries", nil, "Entries array is required"))
			return
		}
		entries = make([]cache.WarmEntry, 0, len(items))
		for _, it := range items {
			v := it.Value
			if v == nil {
				v = it.Data
			}
			entries = append(entries, cache.WarmEntry{Key: it.Key, Value: v, TTL: it.TTL})
		}
	}

	n, err := h.Cache.Warm(ns, entries)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.Fields(w, map[string]any{
		"message":   "Cache warmed for namespace: " + ns,
		"namespace": ns,
		"count":     n,
	})
}
