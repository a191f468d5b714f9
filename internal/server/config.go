package server

import (
	"strings"
	"time"

	"github.com/lane711/sonicjs/pkg/constants"
)

// Config holds server configuration.
type Config struct {
	// Server settings
	Host string
	Port int

	// PathPrefix mounts the admin API, "/admin" by default.
	PathPrefix string

	// CORS settings
	CORSEnabled bool
	CORSOrigins []string

	// Authentication settings
	AuthEnabled bool
	AuthHeader  string
	APIKey      string

	// RateLimit is requests per minute per IP; 0 disables it.
	RateLimit int

	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool

	// HTTP timeouts
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// TrendInterval is how often cache statistics are sampled.
	TrendInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:          "localhost",
		Port:          8080,
		PathPrefix:    "/admin",
		CORSOrigins:   []string{},
		AuthHeader:    "X-API-Key",
		RateLimit:     300,
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   120 * time.Second,
		TrendInterval: constants.DefaultTrendInterval,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	c.PathPrefix = strings.TrimRight(c.PathPrefix, "/")
	if c.PathPrefix == "" {
		c.PathPrefix = d.PathPrefix
	}
	if c.AuthHeader == "" {
		c.AuthHeader = d.AuthHeader
	}
	if c.TrendInterval <= 0 {
		c.TrendInterval = d.TrendInterval
	}
	return c
}
