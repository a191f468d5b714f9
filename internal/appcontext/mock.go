package appcontext

import (
	"github.com/rs/zerolog"

	"github.com/lane711/sonicjs/internal/plugins"
	"github.com/lane711/sonicjs/internal/plugins/store"
)

// Mock provides a mock implementation of Interface for testing.
// Unset fields fall back to zero values; a nil Store becomes an in-memory
// store on first use.
type Mock struct {
	Log     *zerolog.Logger
	Format  string
	Config  Settings
	Store   plugins.Store
	Ver     string
	Watched []func(Settings)
}

// Logger returns the mock logger or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.Log != nil {
		return m.Log
	}
	nop := zerolog.Nop()
	return &nop
}

// OutputFormat returns the mock output format.
func (m *Mock) OutputFormat() string { return m.Format }

// Settings returns the mock settings.
func (m *Mock) Settings() Settings { return m.Config }

// WatchSettings records fn so tests can trigger it with Reload.
func (m *Mock) WatchSettings(fn func(Settings)) {
	m.Watched = append(m.Watched, fn)
}

// Reload replaces the settings and notifies every watcher.
func (m *Mock) Reload(s Settings) {
	m.Config = s
	for _, fn := range m.Watched {
		fn(s)
	}
}

// PluginStore returns the mock store.
func (m *Mock) PluginStore() plugins.Store {
	if m.Store == nil {
		m.Store = store.NewMemory()
	}
	return m.Store
}

// Version returns the mock version or "dev".
func (m *Mock) Version() string {
	if m.Ver != "" {
		return m.Ver
	}
	return "dev"
}

// Commit returns "unknown".
func (m *Mock) Commit() string { return "unknown" }

// Date returns "unknown".
func (m *Mock) Date() string { return "unknown" }

// BuiltBy returns "test".
func (m *Mock) BuiltBy() string { return "test" }

var _ Interface = (*Mock)(nil)
