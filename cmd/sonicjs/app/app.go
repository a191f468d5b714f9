// Package app provides the application context and dependency management
// for the sonicjs CLI: configuration, logging, the plugin store and
// lifecycle handling.
package app

import (
	"context"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/lane711/sonicjs/internal/appcontext"
	"github.com/lane711/sonicjs/internal/plugins"
	"github.com/lane711/sonicjs/internal/plugins/store"
	"github.com/lane711/sonicjs/pkg/errors"
)

// App represents the sonicjs application with all its dependencies.
type App struct {
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger

	mu       sync.Mutex
	store    plugins.Store
	watchers []func(appcontext.Settings)
	watching bool
}

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string { return a.version }

// Commit returns the git commit hash.
func (a *App) Commit() string { return a.commit }

// Date returns the build date.
func (a *App) Date() string { return a.date }

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string { return a.builtBy }

// Config returns the application configuration.
func (a *App) Config() *Config { return a.config }

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger { return a.logger }

// OutputFormat returns the configured output format.
func (a *App) OutputFormat() string { return a.config.Format }

// Settings returns the current file-backed settings.
func (a *App) Settings() appcontext.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config.Settings()
}

// PluginStore returns the YAML store at the configured plugins file,
// creating it on first use.
func (a *App) PluginStore() plugins.Store {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store == nil {
		a.store = store.NewFile(a.config.Settings().PluginsFile)
	}
	return a.store
}

// WatchSettings calls fn whenever the config file changes. The file is
// watched through viper, which uses fsnotify.
func (a *App) WatchSettings(fn func(appcontext.Settings)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.config.ConfigFile == "" {
		a.logger.Debug().Msg("No config file in use, settings will not be watched")
		return
	}
	a.watchers = append(a.watchers, fn)
	if a.watching {
		return
	}
	a.watching = true

	a.config.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		a.mu.Lock()
		settings := a.config.Settings()
		watchers := append([]func(appcontext.Settings){}, a.watchers...)
		a.mu.Unlock()

		a.logger.Info().Str("file", e.Name).Msg("Config file changed")
		for _, w := range watchers {
			w(settings)
		}
	})
	a.config.v.WatchConfig()
}

// Shutdown performs graceful shutdown of the application.
func (a *App) Shutdown(_ context.Context) error {
	return nil
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithPluginStore sets the plugin store (useful for testing).
func WithPluginStore(s plugins.Store) Option {
	return func(a *App) error {
		a.store = s
		return nil
	}
}

var _ appcontext.Interface = (*App)(nil)
