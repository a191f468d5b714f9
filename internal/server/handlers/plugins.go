package handlers

import (
	"net/http"

	"github.com/lane711/sonicjs/internal/plugins"
	"github.com/lane711/sonicjs/internal/server/response"
	"github.com/lane711/sonicjs/pkg/errors"
	"github.com/lane711/sonicjs/pkg/logging"
)

// HandleListPlugins handles GET /admin/plugins.
// Query: status, category, all (include uninstalled).
func (h *Handlers) HandleListPlugins(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list := h.Plugins.List(plugins.ListFilter{
		Status:             plugins.Status(q.Get("status")),
		Category:           q.Get("category"),
		IncludeUninstalled: q.Get("all") == "true",
	})
	response.OK(w, map[string]any{
		"plugins": list,
		"stats":   h.Plugins.Stats(),
	})
}

// HandleGetPlugin handles GET /admin/plugins/{id}.
func (h *Handlers) HandleGetPlugin(w http.ResponseWriter, r *http.Request) {
	p, err := h.Plugins.Get(r.PathValue("id"))
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, p)
}

// HandleInstallPlugin handles POST /admin/plugins.
func (h *Handlers) HandleInstallPlugin(w http.ResponseWriter, r *http.Request) {
	var p plugins.Plugin
	if err := decodeJSON(r, &p); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	installed, err := h.Plugins.Install(r.Context(), p)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.Created(w, installed)
}

// transition runs a lifecycle operation for the {id} path value.
func (h *Handlers) transition(action string, fn func(r *http.Request, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		ctx := logging.WithPlugin(r.Context(), id)
		if err := fn(r.WithContext(ctx), id); err != nil {
			logging.FromContext(ctx).Warn().Err(err).Str("action", action).Msg("Plugin transition rejected")
			response.ErrorFromType(w, err)
			return
		}
		response.Fields(w, nil)
	}
}

// HandleActivatePlugin handles POST /admin/plugins/{id}/activate.
func (h *Handlers) HandleActivatePlugin(w http.ResponseWriter, r *http.Request) {
	h.transition("activate", func(r *http.Request, id string) error {
		_, err := h.Plugins.Activate(r.Context(), id)
		return err
	})(w, r)
}

// HandleDeactivatePlugin handles POST /admin/plugins/{id}/deactivate.
func (h *Handlers) HandleDeactivatePlugin(w http.ResponseWriter, r *http.Request) {
	h.transition("deactivate", func(r *http.Request, id string) error {
		_, err := h.Plugins.Deactivate(r.Context(), id)
		return err
	})(w, r)
}

// HandleUninstallPlugin handles POST /admin/plugins/{id}/uninstall.
func (h *Handlers) HandleUninstallPlugin(w http.ResponseWriter, r *http.Request) {
	h.transition("uninstall", func(r *http.Request, id string) error {
		return h.Plugins.Uninstall(r.Context(), id)
	})(w, r)
}

// HandleUpdateSettings handles PUT|POST /admin/plugins/{id}/settings. The
// body is either the settings object or {"settings": {...}}.
func (h *Handlers) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeJSON(r, &body); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	if body == nil {
		response.ErrorFromType(w, errors.NewValidationError("settings", nil, "Settings object is required"))
		return
	}
	settings := body
	if nested, ok := body["settings"].(map[string]any); ok && len(body) == 1 {
		settings = nested
	}

	h.transition("settings", func(r *http.Request, id string) error {
		_, err := h.Plugins.UpdateSettings(r.Context(), id, settings)
		return err
	})(w, r)
}

// HandlePluginActivity handles GET /admin/plugins/{id}/activity.
func (h *Handlers) HandlePluginActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	activity, err := h.Plugins.Activity(r.PathValue("id"), limit)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	if activity == nil {
		activity = []plugins.Activity{}
	}
	response.OK(w, activity)
}
