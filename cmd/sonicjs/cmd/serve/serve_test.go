package serve

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lane711/sonicjs/internal/appcontext"
	"github.com/lane711/sonicjs/internal/cache"
	"github.com/lane711/sonicjs/internal/hooks"
	"github.com/lane711/sonicjs/internal/plugins"
	"github.com/lane711/sonicjs/internal/plugins/store"
	"github.com/lane711/sonicjs/pkg/constants"
)

func TestParseOptions(t *testing.T) {
	cmd := NewCommand(&appcontext.Mock{})
	require.NoError(t, cmd.Flags().Parse([]string{
		"--port", "9090",
		"--prefix", "/ops",
		"--cors-origins", "https://a.example,https://b.example",
		"--snapshot", "/tmp/flag.snap",
		"--trust-proxy",
	}))

	opts, err := parseOptions(cmd, appcontext.Settings{PluginsFile: "plugins.yaml", SnapshotPath: "/tmp/file.snap"})
	require.NoError(t, err)
	assert.Equal(t, 9090, opts.server.Port)
	assert.Equal(t, "/ops", opts.server.PathPrefix)
	assert.True(t, opts.server.CORSEnabled)
	assert.Len(t, opts.server.CORSOrigins, 2)
	assert.Equal(t, "plugins.yaml", opts.pluginsFile)
	assert.Equal(t, "/tmp/flag.snap", opts.snapshotPath)
	assert.Equal(t, constants.DefaultTrendInterval, opts.server.TrendInterval)
	assert.True(t, opts.server.TrustProxy)
}

func TestParseOptionsEnvPort(t *testing.T) {
	t.Setenv("HTTP_PORT", "7070")
	cmd := NewCommand(&appcontext.Mock{})
	require.NoError(t, cmd.Flags().Parse(nil))

	opts, err := parseOptions(cmd, appcontext.Settings{})
	require.NoError(t, err)
	assert.Equal(t, 7070, opts.server.Port)
	assert.False(t, opts.server.TrustProxy)

	t.Setenv("HTTP_PORT", "99999")
	_, err = parseOptions(cmd, appcontext.Settings{})
	assert.Error(t, err)
}

func TestParsePort(t *testing.T) {
	p, err := parsePort("8080")
	require.NoError(t, err)
	assert.Equal(t, 8080, p)

	_, err = parsePort("abc")
	assert.Error(t, err)
	_, err = parsePort("0")
	assert.Error(t, err)
}

func TestNamespacesApplyConfiguredTTLs(t *testing.T) {
	got := namespaces(appcontext.Settings{
		NamespaceTTLs: map[string]time.Duration{"content": time.Minute},
	})
	defaults := cache.DefaultNamespaces()
	require.Len(t, got, len(defaults))

	for i, ns := range got {
		if ns.Name == "content" {
			assert.Equal(t, time.Minute, ns.TTL)
			continue
		}
		assert.Equal(t, defaults[i].TTL, ns.TTL)
	}
}

func TestApplyTTLs(t *testing.T) {
	c := cache.New(nil)
	logger := (&appcontext.Mock{}).Logger()

	applyTTLs(c, appcontext.Settings{NamespaceTTLs: map[string]time.Duration{"media": 2 * time.Minute}}, logger)
	cfg, err := c.Config("media")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.TTL)

	// Removing the override restores the default.
	applyTTLs(c, appcontext.Settings{}, logger)
	cfg, err = c.Config("media")
	require.NoError(t, err)
	assert.Equal(t, constants.MediaCacheTTL, cfg.TTL)
}

func TestBuildStack(t *testing.T) {
	ctx := context.Background()
	st, err := buildStack(ctx, appcontext.Settings{}, store.NewMemory(), (&appcontext.Mock{}).Logger())
	require.NoError(t, err)
	defer st.invalidation.Stop()

	for _, core := range plugins.CorePlugins() {
		p, err := st.plugins.Get(core.ID)
		require.NoError(t, err)
		assert.Equal(t, plugins.StatusActive, p.Status)
	}

	require.NoError(t, st.cache.Set("media", "media:file:1:v1", "x"))
	st.registry.Emit(ctx, hooks.MediaDeleted, hooks.EntityPayload{ID: "1"})
	ok, err := st.cache.Has("media", "media:file:1:v1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRunServesAndWritesSnapshot(t *testing.T) {
	dir := t.TempDir()
	app := &appcontext.Mock{}
	port := freePort(t)

	cmd := NewCommand(app)
	require.NoError(t, cmd.Flags().Parse([]string{
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
		"--plugins-file", filepath.Join(dir, "plugins.yaml"),
		"--snapshot", filepath.Join(dir, "cache.snap"),
	}))
	opts, err := parseOptions(cmd, app.Settings())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, app, opts) }()

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	require.Len(t, app.Watched, 1)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.FileExists(t, filepath.Join(dir, "cache.snap"))
	assert.FileExists(t, filepath.Join(dir, "plugins.yaml"))
}
