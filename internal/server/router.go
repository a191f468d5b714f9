package server

import (
	"net/http"

	"github.com/lane711/sonicjs/internal/server/handlers"
	"github.com/lane711/sonicjs/internal/server/middleware"
)

// setupRouter creates the HTTP handler with routes and middleware.
func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux, s.handlers())
	return s.applyMiddleware(mux)
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux, h *handlers.Handlers) {
	p := s.config.PathPrefix

	mux.HandleFunc("GET /favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Public health endpoints
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /ready", h.HandleReady)

	// Cache
	mux.HandleFunc("GET "+p+"/cache", h.HandleCacheDashboard)
	mux.HandleFunc("GET "+p+"/cache/stats", h.HandleCacheStats)
	mux.HandleFunc("GET "+p+"/cache/stats/{namespace}", h.HandleNamespaceStats)
	mux.HandleFunc("POST "+p+"/cache/clear", h.HandleClearAll)
	mux.HandleFunc("POST "+p+"/cache/clear/{namespace}", h.HandleClearNamespace)
	mux.HandleFunc("POST "+p+"/cache/invalidate", h.HandleInvalidate)
	mux.HandleFunc("GET "+p+"/cache/health", h.HandleCacheHealth)
	mux.HandleFunc("GET "+p+"/cache/browser", h.HandleBrowse)
	mux.HandleFunc("GET "+p+"/cache/browser/{namespace}/{key...}", h.HandleEntry)
	mux.HandleFunc("GET "+p+"/cache/analytics", h.HandleAnalytics)
	mux.HandleFunc("GET "+p+"/cache/analytics/trends", h.HandleTrends)
	mux.HandleFunc("GET "+p+"/cache/analytics/top-keys", h.HandleTopKeys)
	mux.HandleFunc("POST "+p+"/cache/warm/{namespace}", h.HandleWarm)

	// Plugins
	mux.HandleFunc("GET "+p+"/plugins", h.HandleListPlugins)
	mux.HandleFunc("POST "+p+"/plugins", h.HandleInstallPlugin)
	mux.HandleFunc("GET "+p+"/plugins/{id}", h.HandleGetPlugin)
	mux.HandleFunc("POST "+p+"/plugins/{id}/activate", h.HandleActivatePlugin)
	mux.HandleFunc("POST "+p+"/plugins/{id}/deactivate", h.HandleDeactivatePlugin)
	mux.HandleFunc("POST "+p+"/plugins/{id}/uninstall", h.HandleUninstallPlugin)
	mux.HandleFunc("PUT "+p+"/plugins/{id}/settings", h.HandleUpdateSettings)
	mux.HandleFunc("POST "+p+"/plugins/{id}/settings", h.HandleUpdateSettings)
	mux.HandleFunc("GET "+p+"/plugins/{id}/activity", h.HandlePluginActivity)

	// Hooks and the live event feed
	mux.HandleFunc("GET "+p+"/hooks", h.HandleHooks)
	mux.HandleFunc("POST "+p+"/events/{name}", h.HandleEmitEvent)
	mux.HandleFunc("GET "+p+"/events/stream", h.HandleSSE)
	mux.HandleFunc("GET "+p+"/events/ws", h.HandleWebSocket)
}

// applyMiddleware wraps handler with the middleware chain.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	cfg := s.config

	if cfg.RateLimit > 0 {
		handler = middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimit, cfg.TrustProxy, s.logger))(handler)
	}

	if cfg.AuthEnabled {
		authConfig := middleware.DefaultAuthConfig()
		authConfig.Enabled = true
		authConfig.HeaderName = cfg.AuthHeader
		if cfg.APIKey != "" {
			authConfig.APIKey = cfg.APIKey
		}
		handler = middleware.Auth(authConfig, s.logger)(handler)
	}

	if cfg.CORSEnabled {
		corsConfig := middleware.DefaultCORSConfig()
		if len(cfg.CORSOrigins) > 0 {
			corsConfig.AllowedOrigins = cfg.CORSOrigins
		} else {
			corsConfig.AllowAll = true
		}
		handler = middleware.CORS(corsConfig)(handler)
	}

	return middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.Logger(s.logger),
	)(handler)
}
