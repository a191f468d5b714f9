// Package constants provides shared constants used throughout the sonicjs services.
// This includes cache TTLs, limits, file permissions and server timeouts that
// should be consistent across the hook registry, plugin manager and cache.
package constants

import "time"

// Cache TTL constants mirror the per-namespace defaults of the admin cache
const (
	// DefaultCacheTTL applies to namespaces without an explicit TTL
	DefaultCacheTTL = 1 * time.Hour

	// ContentCacheTTL is the default TTL for the content namespace
	ContentCacheTTL = 1 * time.Hour

	// CollectionsCacheTTL is the default TTL for the collections namespace
	CollectionsCacheTTL = 2 * time.Hour

	// MediaCacheTTL is the default TTL for the media namespace
	MediaCacheTTL = 24 * time.Hour

	// UserCacheTTL is the default TTL for the user namespace
	UserCacheTTL = 15 * time.Minute

	// ConfigCacheTTL is the default TTL for the config namespace
	ConfigCacheTTL = 2 * time.Hour

	// PluginCacheTTL is the default TTL for the plugin namespace
	PluginCacheTTL = 2 * time.Hour

	// APICacheTTL is the default TTL for the api namespace
	APICacheTTL = 5 * time.Minute

	// SessionCacheTTL is the default TTL for the session namespace
	SessionCacheTTL = 30 * time.Minute
)

// Timeout constants
const (
	// ShutdownTimeout bounds graceful shutdown of the HTTP server
	ShutdownTimeout = 5 * time.Second

	// DefaultTrendInterval is how often cache statistics are sampled for trends
	DefaultTrendInterval = 5 * time.Minute
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Limit constants define various limits and capacities
const (
	// EventLogSize is the number of emissions retained in the hook registry log
	EventLogSize = 100

	// InvalidationLogSize is the number of invalidations retained for analytics
	InvalidationLogSize = 100

	// TrendSamples is the number of statistics samples kept for trends (one day at 5m)
	TrendSamples = 288

	// DefaultBrowseLimit caps cache browser results when no limit is given
	DefaultBrowseLimit = 100

	// MaxBrowseLimit is the largest limit the cache browser accepts
	MaxBrowseLimit = 1000

	// DefaultActivityLimit is the default number of plugin activity records returned
	DefaultActivityLimit = 10

	// DefaultHookPriority is the priority given to subscribers registered without one
	DefaultHookPriority = 10
)
