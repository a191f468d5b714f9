// Package appcontext provides the application context interface shared by
// all commands, so command packages depend on an interface instead of the
// concrete App.
package appcontext

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/lane711/sonicjs/internal/plugins"
)

// Settings are the file-backed settings commands read. They can change at
// runtime when the config file is edited.
type Settings struct {
	// PluginsFile is where plugin state is persisted.
	PluginsFile string

	// SnapshotPath enables cache snapshots when set.
	SnapshotPath string

	// DefaultTTL overrides the TTL of every namespace when non-zero.
	DefaultTTL time.Duration

	// NamespaceTTLs overrides the TTL of individual namespaces.
	NamespaceTTLs map[string]time.Duration
}

// TTL returns the configured TTL for ns and whether one is configured.
func (s Settings) TTL(ns string) (time.Duration, bool) {
	if ttl, ok := s.NamespaceTTLs[ns]; ok {
		return ttl, true
	}
	if s.DefaultTTL > 0 {
		return s.DefaultTTL, true
	}
	return 0, false
}

// Interface defines what commands need from the application.
type Interface interface {
	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (json, yaml, table).
	OutputFormat() string

	// Settings returns the current file-backed settings.
	Settings() Settings

	// WatchSettings calls fn with fresh settings whenever the config file
	// changes. It is a no-op when no config file is in use.
	WatchSettings(fn func(Settings))

	// PluginStore returns the store plugin state is persisted in.
	PluginStore() plugins.Store

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string

	// BuiltBy returns the build system identifier.
	BuiltBy() string
}
