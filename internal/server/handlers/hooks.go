package handlers

import (
	"net/http"
	"strings"

	"github.com/lane711/sonicjs/internal/hooks"
	"github.com/lane711/sonicjs/internal/server/response"
	"github.com/lane711/sonicjs/pkg/errors"
	"github.com/lane711/sonicjs/pkg/logging"
)

const defaultHookLog = 20

// HandleHooks handles GET /admin/hooks: registered events, subscriber
// counts, emission totals and the recent emission log.
func (h *Handlers) HandleHooks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultHookLog)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	data := map[string]any{
		"events": h.Registry.Events(),
		"stats":  h.Registry.Stats(),
		"recent": h.Registry.Log(limit),
	}
	if h.Invalidation != nil {
		data["invalidation"] = h.Invalidation.Summary(limit)
	}
	response.OK(w, data)
}

// HandleEmitEvent handles POST /admin/events/{name}. The JSON body becomes
// the event payload, so external systems can report content changes.
func (h *Handlers) HandleEmitEvent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" || name == hooks.Wildcard || strings.ContainsAny(name, " \t\n") {
		response.ErrorFromType(w, errors.NewValidationError("event", name, "A valid event name is required"))
		return
	}

	var payload map[string]any
	if err := decodeJSON(r, &payload); err != nil {
		response.ErrorFromType(w, err)
		return
	}

	ctx := logging.WithEvent(r.Context(), name)
	h.Registry.Emit(ctx, name, payload)

	logging.FromContext(ctx).Debug().Msg("Event emitted via admin API")
	response.Fields(w, map[string]any{
		"event":       name,
		"subscribers": h.Registry.SubscriberCount(name) + h.Registry.SubscriberCount(hooks.Wildcard),
	})
}
