// Package serve provides the command that runs the admin API server.
package serve

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lane711/sonicjs/internal/appcontext"
	"github.com/lane711/sonicjs/internal/server"
	"github.com/lane711/sonicjs/pkg/constants"
)

// NewCommand creates the serve command using app context.
func NewCommand(app appcontext.Interface) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		GroupID: "core",
		Short:   "Start the admin API server",
		Long: `Start the admin API server for plugins, hooks and the cache.

Features:
  - Cache statistics, browsing, invalidation, warming and analytics
  - Plugin install, activation, deactivation, settings and activity
  - Hook registry inspection and event emission
  - WebSocket and Server-Sent Events feeds of every emitted event
  - Rate limiting, API key authentication and CORS
  - Optional cache snapshot restored on start and written on shutdown
  - Live namespace TTL changes when the config file is edited`,
		Example: `  # Start on default port 8080
  sonicjs serve

  # Require SONICJS_API_KEY on every admin request
  sonicjs serve --auth

  # Persist the cache across restarts
  sonicjs serve --snapshot .sonicjs/cache.snap`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := parseOptions(cmd, app.Settings())
			if err != nil {
				return err
			}
			return run(cmd.Context(), app, opts)
		},
	}

	defaults := server.DefaultConfig()

	cmd.Flags().Int("port", defaults.Port, "Server port")
	cmd.Flags().String("host", defaults.Host, "Bind address")
	cmd.Flags().String("prefix", defaults.PathPrefix, "Admin API path prefix")

	cmd.Flags().Bool("cors", false, "Enable CORS for all origins")
	cmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (comma-separated)")

	cmd.Flags().Bool("auth", false, "Enable API key authentication (key from SONICJS_API_KEY)")
	cmd.Flags().String("auth-header", defaults.AuthHeader, "Authentication header name")

	cmd.Flags().Int("rate-limit", defaults.RateLimit, "Requests per minute per IP (0 to disable)")
	cmd.Flags().Bool("trust-proxy", false, "Take the client IP from X-Forwarded-For (only behind a trusted proxy)")

	cmd.Flags().Duration("read-timeout", defaults.ReadTimeout, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", defaults.WriteTimeout, "HTTP write timeout")
	cmd.Flags().Duration("idle-timeout", defaults.IdleTimeout, "HTTP idle timeout")

	cmd.Flags().String("plugins-file", "", "Plugin state file (overrides plugins_file)")
	cmd.Flags().String("snapshot", "", "Cache snapshot file (overrides snapshot_path)")
	cmd.Flags().Duration("trend-interval", constants.DefaultTrendInterval, "Cache statistics sampling interval")

	return cmd
}

// options is the parsed serve configuration.
type options struct {
	server       server.Config
	pluginsFile  string
	snapshotPath string
}

// parseOptions parses command flags, falling back to file settings for the
// plugin and snapshot paths.
func parseOptions(cmd *cobra.Command, settings appcontext.Settings) (options, error) {
	flags := cmd.Flags()
	port, _ := flags.GetInt("port")
	host, _ := flags.GetString("host")
	prefix, _ := flags.GetString("prefix")
	corsEnabled, _ := flags.GetBool("cors")
	corsOrigins, _ := flags.GetStringSlice("cors-origins")
	authEnabled, _ := flags.GetBool("auth")
	authHeader, _ := flags.GetString("auth-header")
	rateLimit, _ := flags.GetInt("rate-limit")
	trustProxy, _ := flags.GetBool("trust-proxy")
	readTimeout, _ := flags.GetDuration("read-timeout")
	writeTimeout, _ := flags.GetDuration("write-timeout")
	idleTimeout, _ := flags.GetDuration("idle-timeout")
	pluginsFile, _ := flags.GetString("plugins-file")
	snapshotPath, _ := flags.GetString("snapshot")
	trendInterval, _ := flags.GetDuration("trend-interval")

	if envPort := os.Getenv("HTTP_PORT"); envPort != "" && !flags.Changed("port") {
		p, err := parsePort(envPort)
		if err != nil {
			return options{}, err
		}
		port = p
	}
	if envHost := os.Getenv("HTTP_HOST"); envHost != "" && !flags.Changed("host") {
		host = envHost
	}
	if rateLimit < 0 {
		return options{}, fmt.Errorf("rate limit must not be negative: %d", rateLimit)
	}

	if pluginsFile == "" {
		pluginsFile = settings.PluginsFile
	}
	if snapshotPath == "" {
		snapshotPath = settings.SnapshotPath
	}

	return options{
		server: server.Config{
			Host:          host,
			Port:          port,
			PathPrefix:    prefix,
			CORSEnabled:   corsEnabled || len(corsOrigins) > 0,
			CORSOrigins:   corsOrigins,
			AuthEnabled:   authEnabled,
			AuthHeader:    authHeader,
			RateLimit:     rateLimit,
			TrustProxy:    trustProxy,
			ReadTimeout:   readTimeout,
			WriteTimeout:  writeTimeout,
			IdleTimeout:   idleTimeout,
			TrendInterval: trendInterval,
		},
		pluginsFile:  pluginsFile,
		snapshotPath: snapshotPath,
	}, nil
}

// parsePort safely parses a port string to integer.
func parsePort(portStr string) (int, error) {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port number: %s", portStr)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port out of range: %d", port)
	}
	return port, nil
}
