package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lane711/sonicjs/internal/cache"
	"github.com/lane711/sonicjs/internal/hooks"
	"github.com/lane711/sonicjs/internal/invalidation"
	"github.com/lane711/sonicjs/internal/plugins"
	"github.com/lane711/sonicjs/internal/plugins/store"
)

type testEnv struct {
	srv      *Server
	handler  http.Handler
	cache    *cache.Cache
	registry *hooks.Registry
	plugins  *plugins.Manager
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	ctx := context.Background()

	registry := hooks.New(nil)
	c := cache.New(nil)
	mgr := plugins.NewManager(registry, plugins.WithStore(store.NewMemory()))
	require.NoError(t, mgr.EnsureCorePlugins(ctx))
	inv := invalidation.New(c, registry, nil)
	inv.Start()

	cfg := DefaultConfig()
	cfg.RateLimit = 0
	for _, m := range mutate {
		m(&cfg)
	}

	srv, err := New(Services{Registry: registry, Cache: c, Plugins: mgr, Invalidation: inv}, cfg, nil)
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		inv.Stop()
	})

	return &testEnv{srv: srv, handler: srv.Handler(), cache: c, registry: registry, plugins: mgr}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	var decoded map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	}
	return w, decoded
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "data is not an object: %v", body["data"])
	return d
}

func TestNewRequiresServices(t *testing.T) {
	_, err := New(Services{}, DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestNewDoesNotBlock(t *testing.T) {
	done := make(chan struct{})
	go func() {
		_, err := New(Services{
			Registry: hooks.New(nil),
			Cache:    cache.New(nil),
			Plugins:  plugins.NewManager(hooks.New(nil)),
		}, Config{}, nil)
		assert.NoError(t, err)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("New blocked before Start")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{PathPrefix: "/ops/"}.withDefaults()
	assert.Equal(t, "/ops", cfg.PathPrefix)
	assert.Equal(t, "X-API-Key", cfg.AuthHeader)
	assert.Positive(t, cfg.TrendInterval)

	assert.Equal(t, "/admin", Config{}.withDefaults().PathPrefix)
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", data(t, body)["status"])

	w, body = env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", data(t, body)["status"])
}

func TestCacheStatsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.cache.Set("content", "content:post:1:v1", "hello"))

	w, body := env.do(t, http.MethodGet, "/admin/cache/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, data(t, body), "content")
	assert.Contains(t, body, "timestamp")

	w, body = env.do(t, http.MethodGet, "/admin/cache/stats/content", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	d := data(t, body)
	assert.Equal(t, "content", d["namespace"])
	assert.Contains(t, d, "config")
	assert.Contains(t, d, "stats")

	w, body = env.do(t, http.MethodGet, "/admin/cache/stats/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Unknown namespace: nope", body["error"])
}

func TestCacheClear(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.cache.Set("content", "a", 1))
	require.NoError(t, env.cache.Set("content", "b", 2))
	require.NoError(t, env.cache.Set("media", "m", 3))

	w, body := env.do(t, http.MethodPost, "/admin/cache/clear/content", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "content", body["namespace"])
	assert.Equal(t, float64(2), body["cleared"])

	w, _ = env.do(t, http.MethodPost, "/admin/cache/clear/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = env.do(t, http.MethodPost, "/admin/cache/clear", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "All cache entries cleared", body["message"])
	assert.Zero(t, env.cache.TotalStats().EntryCount)

	w, _ = env.do(t, http.MethodGet, "/admin/cache/clear", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestCacheInvalidate(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.cache.Set("content", "content:post:1:v1", 1))
	require.NoError(t, env.cache.Set("content", "content:page:1:v1", 2))
	require.NoError(t, env.cache.Set("api", "content:post:2:v1", 3))

	w, body := env.do(t, http.MethodPost, "/admin/cache/invalidate", map[string]string{"pattern": "content:post:*"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["invalidated"])
	assert.Equal(t, "all", body["namespace"])
	assert.Equal(t, "content:post:*", body["pattern"])

	w, body = env.do(t, http.MethodPost, "/admin/cache/invalidate", map[string]string{"pattern": "*", "namespace": "content"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["invalidated"])
	assert.Equal(t, "content", body["namespace"])

	w, body = env.do(t, http.MethodPost, "/admin/cache/invalidate", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Pattern is required", body["error"])

	w, _ = env.do(t, http.MethodPost, "/admin/cache/invalidate", map[string]string{"pattern": "*", "namespace": "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCacheInvalidateRegex(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.cache.Set("content", "content:post:12:v1", 1))
	require.NoError(t, env.cache.Set("content", "content:post:draft:v1", 2))

	w, body := env.do(t, http.MethodPost, "/admin/cache/invalidate", map[string]any{
		"pattern":   `^content:post:\d+:`,
		"namespace": "content",
		"regex":     true,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["invalidated"])
	assert.Equal(t, true, body["regex"])

	ok, err := env.cache.Has("content", "content:post:draft:v1")
	require.NoError(t, err)
	assert.True(t, ok)

	w, _ = env.do(t, http.MethodPost, "/admin/cache/invalidate", map[string]any{"pattern": "(", "regex": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Without the flag the same text is a glob, so regex syntax is literal.
	require.NoError(t, env.cache.Set("content", "content:post:7:v1", 3))
	w, body = env.do(t, http.MethodPost, "/admin/cache/invalidate", map[string]any{"pattern": `content:post:\d+:*`})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["invalidated"])
}

func TestCacheBrowser(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.cache.Set("content", "page:1", map[string]string{"title": "One"}))
	require.NoError(t, env.cache.Set("content", "post:1", "x"))

	w, body := env.do(t, http.MethodGet, "/admin/cache/browser?namespace=content&search=page&sort=key&limit=10", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	d := data(t, body)
	assert.Equal(t, "content", d["namespace"])
	assert.Equal(t, "page", d["search"])
	assert.Equal(t, "key", d["sortBy"])
	assert.Equal(t, float64(1), d["showing"])

	w, _ = env.do(t, http.MethodGet, "/admin/cache/browser?sort=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodGet, "/admin/cache/browser?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = env.do(t, http.MethodGet, "/admin/cache/browser/content/page:1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	d = data(t, body)
	assert.Equal(t, "page:1", d["key"])
	assert.Equal(t, "content", d["namespace"])
	assert.Equal(t, map[string]any{"title": "One"}, d["value"])

	w, _ = env.do(t, http.MethodGet, "/admin/cache/browser/unknown/page:1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = env.do(t, http.MethodGet, "/admin/cache/browser/content/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, body["error"], "not found")
}

func TestCacheWarm(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/admin/cache/warm/content", map[string]any{
		"entries": []map[string]any{
			{"key": "page:1", "data": map[string]string{"title": "Page 1"}},
			{"key": "page:2", "value": "two", "ttl": 60},
		},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "content", body["namespace"])
	assert.Equal(t, float64(2), body["count"])

	v, ok, err := env.cache.Get("content", "page:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"title": "Page 1"}, v)

	w, body = env.do(t, http.MethodPost, "/admin/cache/warm/content", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Entries array is required", body["error"])

	w, _ = env.do(t, http.MethodPost, "/admin/cache/warm/content", map[string]any{"entries": "not-an-array"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/admin/cache/warm/nope", map[string]any{"entries": []any{}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCacheHealthAndAnalytics(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.cache.Set("content", "k", "v"))
	for i := 0; i < 3; i++ {
		_, _, _ = env.cache.Get("content", "k")
	}

	w, body := env.do(t, http.MethodGet, "/admin/cache/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	d := data(t, body)
	assert.Equal(t, "healthy", d["status"])
	assert.Len(t, d["namespaces"], len(cache.DefaultNamespaces()))

	w, body = env.do(t, http.MethodGet, "/admin/cache/analytics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	d = data(t, body)
	for _, k := range []string{"overview", "performance", "namespaces", "invalidation"} {
		assert.Contains(t, d, k)
	}
	assert.Equal(t, "100.00", d["overview"].(map[string]any)["overallHitRate"])
	assert.Equal(t, float64(3), d["performance"].(map[string]any)["dbQueriesAvoided"])

	w, body = env.do(t, http.MethodGet, "/admin/cache/analytics/trends", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.IsType(t, []any{}, data(t, body)["trends"])

	w, body = env.do(t, http.MethodGet, "/admin/cache/analytics/top-keys", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	d = data(t, body)
	assert.NotEmpty(t, d["note"])
	top := d["topKeys"].([]any)
	require.Len(t, top, 1)
	assert.Equal(t, "k", top[0].(map[string]any)["key"])
}

func TestCacheDashboard(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.cache.Set("content", "k", "v"))

	w, _ := env.do(t, http.MethodGet, "/admin/cache", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Cache Dashboard")
	assert.Contains(t, w.Body.String(), `action="/admin/cache/clear/content"`)
}

func TestPluginLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/admin/plugins", map[string]any{"id": "email", "version": "2.0.0"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "installed", data(t, body)["status"])

	w, _ = env.do(t, http.MethodPost, "/admin/plugins", map[string]any{"id": "email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.NoError(t, env.cache.Set("plugin", "plugin:email:settings:v1", 1))

	w, body = env.do(t, http.MethodPost, "/admin/plugins/email/activate", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	ok, err := env.cache.Has("plugin", "plugin:email:settings:v1")
	require.NoError(t, err)
	assert.False(t, ok, "activation invalidates the plugin namespace")

	w, body = env.do(t, http.MethodGet, "/admin/plugins/email", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", data(t, body)["status"])

	w, _ = env.do(t, http.MethodPut, "/admin/plugins/email/settings", map[string]any{"host": "smtp.example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	p, err := env.plugins.Get("email")
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", p.Settings["host"])

	w, body = env.do(t, http.MethodGet, "/admin/plugins/email/activity", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["data"])

	w, _ = env.do(t, http.MethodPost, "/admin/plugins/email/deactivate", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodPost, "/admin/plugins/email/uninstall", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = env.do(t, http.MethodGet, "/admin/plugins", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	d := data(t, body)
	list := d["plugins"].([]any)
	assert.Len(t, list, len(plugins.CorePlugins()))
	assert.Equal(t, float64(len(plugins.CorePlugins())), d["stats"].(map[string]any)["active"])
}

func TestPluginEndpointErrors(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/admin/plugins/auth/deactivate", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])

	w, _ = env.do(t, http.MethodPost, "/admin/plugins/ghost/activate", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodGet, "/admin/plugins/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, err := env.plugins.Install(context.Background(), plugins.Plugin{ID: "needs-deps", Dependencies: []string{"missing"}})
	require.NoError(t, err)
	w, _ = env.do(t, http.MethodPost, "/admin/plugins/needs-deps/activate", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPluginSettingsValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.plugins.Install(context.Background(), plugins.Plugin{ID: "email"})
	require.NoError(t, err)
	env.plugins.RegisterValidator("email", plugins.SettingsValidatorFunc(func(_ context.Context, s map[string]any) []plugins.FieldError {
		if s["host"] == nil {
			return []plugins.FieldError{{Field: "host", Message: "required"}}
		}
		return nil
	}))

	w, body := env.do(t, http.MethodPost, "/admin/plugins/email/settings", map[string]any{"settings": map[string]any{"port": 25}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, body["details"], 1)
}

func TestHooksAndEmit(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.cache.Set("content", "content:post:9:v1", "p"))

	w, body := env.do(t, http.MethodPost, "/admin/events/content:updated", map[string]any{"id": "9"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "content:updated", body["event"])

	ok, err := env.cache.Has("content", "content:post:9:v1")
	require.NoError(t, err)
	assert.False(t, ok)

	w, _ = env.do(t, http.MethodPost, "/admin/events/*", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = env.do(t, http.MethodGet, "/admin/hooks", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	d := data(t, body)
	assert.Contains(t, d["events"], "content:updated")
	assert.NotEmpty(t, d["recent"])
	assert.Contains(t, d, "invalidation")
}

func TestEventStreamReceivesEmissions(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/admin/events/stream")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return env.srv.sseBroadcaster.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	env.registry.Emit(context.Background(), hooks.MediaUploaded, map[string]any{"id": "m1"})

	found := make(chan struct{})
	go func() {
		buf := make([]byte, 4096)
		var seen strings.Builder
		for {
			n, err := resp.Body.Read(buf)
			seen.Write(buf[:n])
			if strings.Contains(seen.String(), "event: media:uploaded") {
				close(found)
				return
			}
			if err != nil {
				return
			}
		}
	}()

	select {
	case <-found:
	case <-time.After(2 * time.Second):
		t.Fatal("emission did not reach the SSE stream")
	}
}

func TestAuthMiddlewareWired(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.AuthEnabled = true
		c.APIKey = "secret"
	})

	w, _ := env.do(t, http.MethodGet, "/admin/cache/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/cache/stats", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCustomPrefix(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.PathPrefix = "/ops" })

	w, _ := env.do(t, http.MethodGet, "/ops/cache/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodGet, "/admin/cache/stats", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestShutdownDetachesFromRegistry(t *testing.T) {
	registry := hooks.New(nil)
	srv, err := New(Services{
		Registry: registry,
		Cache:    cache.New(nil),
		Plugins:  plugins.NewManager(registry),
	}, DefaultConfig(), nil)
	require.NoError(t, err)
	srv.Start()
	srv.Start()
	assert.Equal(t, 1, registry.SubscriberCount(hooks.Wildcard))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Zero(t, registry.SubscriberCount(hooks.Wildcard))
}
