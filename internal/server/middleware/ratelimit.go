package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/lane711/sonicjs/internal/server/response"
)

// RateLimiter allows limit requests per client IP in each window. Idle
// visitors expire with their window.
type RateLimiter struct {
	visitors   *gocache.Cache
	limit      int
	window     time.Duration
	trustProxy bool
	mu         sync.Mutex
	logger     *zerolog.Logger
}

type visitor struct {
	mu      sync.Mutex
	tokens  int
	resetAt time.Time
}

// NewRateLimiter allows limit requests per minute per IP. With trustProxy
// the client IP is taken from X-Forwarded-For; only enable it behind a
// proxy that overwrites that header.
func NewRateLimiter(limit int, trustProxy bool, logger *zerolog.Logger) *RateLimiter {
	rl := newRateLimiter(limit, time.Minute, logger)
	rl.trustProxy = trustProxy
	return rl
}

func newRateLimiter(limit int, window time.Duration, logger *zerolog.Logger) *RateLimiter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RateLimiter{
		visitors: gocache.New(window, 5*window),
		limit:    limit,
		window:   window,
		logger:   logger,
	}
}

func (rl *RateLimiter) visitor(ip string) *visitor {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if v, ok := rl.visitors.Get(ip); ok {
		return v.(*visitor)
	}
	v := &visitor{tokens: rl.limit, resetAt: time.Now().Add(rl.window)}
	rl.visitors.Set(ip, v, 2*rl.window)
	return v
}

// Allow consumes a token for ip. It reports whether the request may
// proceed and, if not, how long until the window resets.
func (rl *RateLimiter) Allow(ip string) (bool, time.Duration) {
	v := rl.visitor(ip)

	v.mu.Lock()
	defer v.mu.Unlock()

	now := time.Now()
	if !now.Before(v.resetAt) {
		v.tokens = rl.limit
		v.resetAt = now.Add(rl.window)
	}
	if v.tokens > 0 {
		v.tokens--
		return true, 0
	}
	return false, v.resetAt.Sub(now)
}

// ClientIP returns the host part of RemoteAddr, or the first
// X-Forwarded-For address when trustProxy is set.
func ClientIP(r *http.Request, trustProxy bool) string {
	if fwd := r.Header.Get("X-Forwarded-For"); trustProxy && fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimit rejects requests over the limiter's budget with 429.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r, rl.trustProxy)
			ok, retry := rl.Allow(ip)
			if !ok {
				rl.logger.Warn().
					Str("ip", ip).
					Str("path", r.URL.Path).
					Msg("Rate limit exceeded")
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Round(time.Second).Seconds())+1))
				response.RateLimited(w, "Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
