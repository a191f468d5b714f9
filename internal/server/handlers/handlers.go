// Package handlers implements the admin API endpoints.
//
// Handlers are organized by domain:
//
//   - cache.go: namespace stats, clear, invalidate, browse and warm
//   - analytics.go: analytics, health, trends and top keys
//   - dashboard.go: the HTML cache dashboard
//   - plugins.go: plugin listing and lifecycle transitions
//   - hooks.go: hook registry introspection and event emission
//   - health.go: liveness and readiness
//   - realtime.go: WebSocket and SSE event feeds
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lane711/sonicjs/internal/analytics"
	"github.com/lane711/sonicjs/internal/cache"
	"github.com/lane711/sonicjs/internal/hooks"
	"github.com/lane711/sonicjs/internal/invalidation"
	"github.com/lane711/sonicjs/internal/plugins"
	"github.com/lane711/sonicjs/internal/server/sse"
	ws "github.com/lane711/sonicjs/internal/server/websocket"
	"github.com/lane711/sonicjs/pkg/errors"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Deps are the services the handlers operate on.
type Deps struct {
	Registry       *hooks.Registry
	Cache          *cache.Cache
	Plugins        *plugins.Manager
	Invalidation   *invalidation.Service
	Analyzer       *analytics.Analyzer
	Recorder       *analytics.Recorder
	WSHub          *ws.Hub
	SSEBroadcaster *sse.Broadcaster
	Upgrader       websocket.Upgrader
	Logger         *zerolog.Logger
	PathPrefix     string
	StartTime      time.Time
}

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	Deps
}

// New creates a Handlers instance.
func New(deps Deps) *Handlers {
	if deps.Logger == nil {
		nop := zerolog.Nop()
		deps.Logger = &nop
	}
	return &Handlers{Deps: deps}
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return errors.NewValidationError("body", nil, "Invalid JSON body: "+err.Error())
	}
	return nil
}

// queryInt parses an integer query parameter, returning def when it is
// absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewValidationError(name, raw, "must be an integer")
	}
	return n, nil
}
