// Package server provides the sonicjs admin HTTP API: cache management,
// plugin lifecycle, hook introspection and a live event feed.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lane711/sonicjs/internal/analytics"
	"github.com/lane711/sonicjs/internal/cache"
	"github.com/lane711/sonicjs/internal/hooks"
	"github.com/lane711/sonicjs/internal/invalidation"
	"github.com/lane711/sonicjs/internal/plugins"
	"github.com/lane711/sonicjs/internal/server/events"
	"github.com/lane711/sonicjs/internal/server/events/adapters"
	"github.com/lane711/sonicjs/internal/server/handlers"
	"github.com/lane711/sonicjs/internal/server/sse"
	ws "github.com/lane711/sonicjs/internal/server/websocket"
	"github.com/lane711/sonicjs/pkg/errors"
)

// Services are the domain services the admin API exposes.
type Services struct {
	Registry     *hooks.Registry
	Cache        *cache.Cache
	Plugins      *plugins.Manager
	Invalidation *invalidation.Service
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	services       Services
	analyzer       *analytics.Analyzer
	recorder       *analytics.Recorder
	broker         *events.Broker
	forward        hooks.Handle
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	upgrader       websocket.Upgrader
	logger         *zerolog.Logger
	config         Config

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	startTime time.Time
}

// New wires the admin server around svc. Registry, Cache and Plugins are
// required; Invalidation is optional.
func New(svc Services, cfg Config, logger *zerolog.Logger) (*Server, error) {
	if svc.Registry == nil || svc.Cache == nil || svc.Plugins == nil {
		return nil, errors.NewConfigError("server", "registry, cache and plugin manager are required", nil)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	cfg = cfg.withDefaults()

	var inv analytics.InvalidationSource
	if svc.Invalidation != nil {
		inv = svc.Invalidation
	}

	broker := events.NewBroker(logger)
	wsHub := ws.NewHub(logger)
	sseBroadcaster := sse.NewBroadcaster(logger)

	// The registration channels are buffered, so this does not wait for Run.
	broker.Subscribe(adapters.NewWebSocketSubscriber(wsHub))
	broker.Subscribe(adapters.NewSSESubscriber(sseBroadcaster))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		services:       svc,
		analyzer:       analytics.New(svc.Cache, inv),
		recorder:       analytics.NewRecorder(svc.Cache, cfg.TrendInterval, 0, logger),
		broker:         broker,
		wsHub:          wsHub,
		sseBroadcaster: sseBroadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:    logger,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}

	s.forward = broker.Attach(svc.Registry)
	logger.Debug().Str("prefix", cfg.PathPrefix).Msg("Admin server created")
	return s, nil
}

// Start runs the background services: the event broker, both live
// transports and the trend recorder. Calling it more than once is a no-op.
func (s *Server) Start() {
	s.startOnce.Do(func() {
		run := func(fn func(context.Context)) {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				fn(s.ctx)
			}()
		}
		run(s.broker.Run)
		run(s.wsHub.Run)
		run(s.sseBroadcaster.Run)
		run(s.recorder.Run)
		s.logger.Debug().Msg("Background services started")
	})
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// HTTPServer builds an http.Server for the configured address.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// Shutdown detaches from the registry and stops the background services,
// waiting for them until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.services.Registry.Unregister(s.forward)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Background services shut down")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Background services shutdown timed out")
		return ctx.Err()
	}
}

// Config returns the effective configuration.
func (s *Server) Config() Config { return s.config }

// Recorder returns the cache trend recorder.
func (s *Server) Recorder() *analytics.Recorder { return s.recorder }

// Uptime returns how long the server has existed.
func (s *Server) Uptime() time.Duration { return time.Since(s.startTime) }

func (s *Server) handlers() *handlers.Handlers {
	return handlers.New(handlers.Deps{
		Registry:       s.services.Registry,
		Cache:          s.services.Cache,
		Plugins:        s.services.Plugins,
		Invalidation:   s.services.Invalidation,
		Analyzer:       s.analyzer,
		Recorder:       s.recorder,
		WSHub:          s.wsHub,
		SSEBroadcaster: s.sseBroadcaster,
		Upgrader:       s.upgrader,
		Logger:         s.logger,
		PathPrefix:     s.config.PathPrefix,
		StartTime:      s.startTime,
	})
}
