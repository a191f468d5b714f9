package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lane711/sonicjs/internal/server/response"
)

// AuthConfig configures API key authentication.
type AuthConfig struct {
	Enabled    bool
	APIKey     string
	HeaderName string
	// PublicPaths are served without a key.
	PublicPaths []string
}

// DefaultAuthConfig reads the key from SONICJS_API_KEY.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		APIKey:      os.Getenv("SONICJS_API_KEY"),
		HeaderName:  "X-API-Key",
		PublicPaths: []string{"/health", "/ready", "/favicon.ico"},
	}
}

// Auth rejects requests without a valid API key. The key may be sent in
// the configured header or as an Authorization bearer token.
func Auth(config AuthConfig, logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.Enabled || isPublicPath(r.URL.Path, config.PublicPaths) {
				next.ServeHTTP(w, r)
				return
			}

			key := extractAPIKey(r, config.HeaderName)
			if config.APIKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(config.APIKey)) != 1 {
				logger.Warn().
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Bool("key_provided", key != "").
					Msg("Authentication failed")
				response.Unauthorized(w, "Invalid or missing API key in the "+config.HeaderName+" header")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isPublicPath(path string, publicPaths []string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

func extractAPIKey(r *http.Request, header string) string {
	if key := r.Header.Get(header); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if key, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return key
	}
	return auth
}
