package serve

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/lane711/sonicjs/internal/appcontext"
	"github.com/lane711/sonicjs/internal/cache"
	"github.com/lane711/sonicjs/internal/cache/snapshot"
	"github.com/lane711/sonicjs/internal/hooks"
	"github.com/lane711/sonicjs/internal/invalidation"
	"github.com/lane711/sonicjs/internal/plugins"
	"github.com/lane711/sonicjs/internal/plugins/store"
	"github.com/lane711/sonicjs/internal/server"
	"github.com/lane711/sonicjs/pkg/constants"
)

// stack is the set of services the admin server runs on.
type stack struct {
	cache        *cache.Cache
	registry     *hooks.Registry
	plugins      *plugins.Manager
	invalidation *invalidation.Service
}

// buildStack creates the cache, hook registry, plugin manager and
// invalidation service, loading plugin state from pluginStore.
func buildStack(ctx context.Context, settings appcontext.Settings, pluginStore plugins.Store, logger *zerolog.Logger) (*stack, error) {
	c := cache.New(namespaces(settings), cache.WithLogger(logger))
	registry := hooks.New(logger)

	mgr := plugins.NewManager(registry, plugins.WithStore(pluginStore), plugins.WithLogger(logger))
	if err := mgr.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading plugin state: %w", err)
	}
	if err := mgr.EnsureCorePlugins(ctx); err != nil {
		return nil, fmt.Errorf("installing core plugins: %w", err)
	}

	inv := invalidation.New(c, registry, logger)
	inv.Start()

	return &stack{cache: c, registry: registry, plugins: mgr, invalidation: inv}, nil
}

// namespaces returns the default namespaces with configured TTLs applied.
func namespaces(settings appcontext.Settings) []cache.NamespaceConfig {
	out := cache.DefaultNamespaces()
	for i := range out {
		if ttl, ok := settings.TTL(out[i].Name); ok {
			out[i].TTL = ttl
		}
	}
	return out
}

// applyTTLs brings namespace TTLs in line with settings. Namespaces without
// a configured TTL go back to their default.
func applyTTLs(c *cache.Cache, settings appcontext.Settings, logger *zerolog.Logger) {
	for _, ns := range namespaces(settings) {
		current, err := c.Config(ns.Name)
		if err != nil || current.TTL == ns.TTL {
			continue
		}
		if err := c.SetDefaultTTL(ns.Name, ns.TTL); err != nil {
			logger.Warn().Err(err).Str("namespace", ns.Name).Msg("Failed to apply namespace TTL")
			continue
		}
		logger.Info().
			Str("namespace", ns.Name).
			Dur("old_ttl", current.TTL).
			Dur("new_ttl", ns.TTL).
			Msg("Namespace TTL updated")
	}
}

// run starts the API server and blocks until ctx is cancelled.
func run(ctx context.Context, app appcontext.Interface, opts options) error {
	logger := app.Logger()

	pluginStore := app.PluginStore()
	if opts.pluginsFile != app.Settings().PluginsFile {
		pluginStore = store.NewFile(opts.pluginsFile)
	}

	st, err := buildStack(ctx, app.Settings(), pluginStore, logger)
	if err != nil {
		return err
	}
	defer st.invalidation.Stop()

	if opts.snapshotPath != "" {
		res, err := snapshot.LoadFile(ctx, opts.snapshotPath, st.cache)
		if err != nil {
			logger.Warn().Err(err).Str("path", opts.snapshotPath).Msg("Failed to restore cache snapshot")
		} else {
			logger.Info().
				Str("path", opts.snapshotPath).
				Int("restored", res.Restored).
				Int("expired", res.Expired).
				Int("skipped", res.Skipped).
				Msg("Cache snapshot restored")
		}
	}

	app.WatchSettings(func(s appcontext.Settings) {
		applyTTLs(st.cache, s, logger)
	})

	srv, err := server.New(server.Services{
		Registry:     st.registry,
		Cache:        st.cache,
		Plugins:      st.plugins,
		Invalidation: st.invalidation,
	}, opts.server, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	logger.Info().
		Int("port", opts.server.Port).
		Str("host", opts.server.Host).
		Str("prefix", srv.Config().PathPrefix).
		Bool("cors", opts.server.CORSEnabled).
		Bool("auth", opts.server.AuthEnabled).
		Int("rate_limit", opts.server.RateLimit).
		Str("plugins_file", opts.pluginsFile).
		Msg("Starting admin server")

	srv.Start()

	addr := net.JoinHostPort(opts.server.Host, strconv.Itoa(opts.server.Port))
	httpServer := srv.HTTPServer(addr)

	err = serveUntilDone(ctx, httpServer, srv, logger)

	if opts.snapshotPath != "" {
		n, serr := snapshot.SaveFile(opts.snapshotPath, st.cache)
		if serr != nil {
			logger.Error().Err(serr).Str("path", opts.snapshotPath).Msg("Failed to write cache snapshot")
		} else {
			logger.Info().Str("path", opts.snapshotPath).Int("entries", n).Msg("Cache snapshot written")
		}
	}
	return err
}

// serveUntilDone runs httpServer until it fails or ctx is cancelled, then
// drains connections and stops the background services.
func serveUntilDone(ctx context.Context, httpServer *http.Server, srv *server.Server, logger *zerolog.Logger) error {
	serverErr := make(chan error, 1)

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErr:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return err
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")

		// The parent context is already cancelled.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()

		// Background services go first so open event streams end and do not
		// hold up the connection drain.
		start := time.Now()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Background services shutdown had issues")
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Dur("took", time.Since(start)).Msg("Server stopped gracefully")
		return nil
	}
}
