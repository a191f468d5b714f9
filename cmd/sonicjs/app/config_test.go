package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".sonicjs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
plugins_file: /var/lib/sonicjs/plugins.yaml
snapshot_path: /var/lib/sonicjs/cache.snap
log_level: debug
cache:
  default_ttl: 30m
  namespaces:
    content:
      ttl: 10m
    session:
      ttl: 24h
`)

	cfg, err := loadConfig(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, "debug", cfg.LogLevel)

	s := cfg.Settings()
	assert.Equal(t, "/var/lib/sonicjs/plugins.yaml", s.PluginsFile)
	assert.Equal(t, "/var/lib/sonicjs/cache.snap", s.SnapshotPath)
	assert.Equal(t, 30*time.Minute, s.DefaultTTL)
	assert.Equal(t, 10*time.Minute, s.NamespaceTTLs["content"])
	assert.Equal(t, 24*time.Hour, s.NamespaceTTLs["session"])

	ttl, ok := s.TTL("media")
	assert.True(t, ok)
	assert.Equal(t, 30*time.Minute, ttl, "default_ttl applies to namespaces without their own")
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "auto", cfg.LogFormat)

	s := cfg.Settings()
	assert.Equal(t, DefaultPluginsFile, s.PluginsFile)
	assert.Empty(t, s.SnapshotPath)
	_, ok := s.TTL("content")
	assert.False(t, ok)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := loadConfig(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("SONICJS_SNAPSHOT_PATH", "/tmp/env.snap")
	t.Setenv("SONICJS_LOG_LEVEL", "warn")

	cfg, err := loadConfig(viper.New(), writeConfig(t, "snapshot_path: /tmp/file.snap\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.snap", cfg.Settings().SnapshotPath)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestUpdateFromFlags(t *testing.T) {
	cfg := &Config{Format: "json", LogLevel: "info"}
	cfg.UpdateFromFlags(true, false, true, "", "debug")

	assert.True(t, cfg.Verbose)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestReloadKeepsFlagValues(t *testing.T) {
	cfg, err := loadConfig(viper.New(), writeConfig(t, "log_level: error\n"))
	require.NoError(t, err)
	cfg.LogLevel = "trace"

	path := writeConfig(t, "log_level: info\nsnapshot_path: /tmp/x.snap\n")
	require.NoError(t, cfg.Reload(path))
	assert.Equal(t, "trace", cfg.LogLevel)
	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, "/tmp/x.snap", cfg.Settings().SnapshotPath)
}
