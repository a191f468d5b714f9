package logging_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lane711/sonicjs/pkg/logging"
)

func TestDefaultLogger(t *testing.T) {
	original := *logging.Default()
	t.Cleanup(func() { logging.SetDefault(original) })

	buf := &bytes.Buffer{}
	logger := zerolog.New(buf).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	logging.SetDefault(logger)

	logging.Default().Info().Msg("info message")
	logging.Default().Warn().Msg("warning message")

	output := buf.String()
	assert.Contains(t, output, "info message")
	assert.Contains(t, output, "warning message")
}

func TestContextLogger(t *testing.T) {
	testLogger := logging.NewTestLogger(t)

	ctx := logging.WithLogger(context.Background(), testLogger.Logger)
	ctx = logging.WithPlugin(ctx, "email")
	ctx = logging.WithNamespace(ctx, "content")
	ctx = logging.WithEvent(ctx, "plugin:activated")
	ctx = logging.WithOperation(ctx, "activate")

	logging.FromContext(ctx).Info().Msg("test message")

	testLogger.AssertContains(t, `"plugin_id":"email"`)
	testLogger.AssertContains(t, `"namespace":"content"`)
	testLogger.AssertContains(t, `"event":"plugin:activated"`)
	testLogger.AssertContains(t, `"operation":"activate"`)
	testLogger.AssertContains(t, "test message")
	assert.Len(t, testLogger.Lines(), 1)
}

func TestRequestID(t *testing.T) {
	testLogger := logging.NewTestLogger(t)
	ctx := logging.WithLogger(context.Background(), testLogger.Logger)
	ctx = logging.WithRequestID(ctx, "req-42")

	assert.Equal(t, "req-42", logging.RequestID(ctx))
	assert.Empty(t, logging.RequestID(context.Background()))

	logging.FromContext(ctx).Info().Msg("handled")
	testLogger.AssertContains(t, "req-42")
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Equal(t, logging.Default(), logging.FromContext(context.Background()))
	//nolint:staticcheck // nil context is the case under test
	assert.Equal(t, logging.Default(), logging.FromContext(nil))
}

func TestFromContextHonoursZerologContext(t *testing.T) {
	testLogger := logging.NewTestLogger(t)
	ctx := testLogger.Logger.WithContext(context.Background())

	logging.FromContext(ctx).Info().Msg("from zerolog ctx")
	testLogger.AssertContains(t, "from zerolog ctx")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"", zerolog.InfoLevel},
		{"WARNING", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"nonsense", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, logging.ParseLevel(tt.in))
		})
	}
}

func TestNewLoggerFromConfigFileOutput(t *testing.T) {
	oldLevel := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(oldLevel) })

	path := filepath.Join(t.TempDir(), "sonicjs.log")
	logger := logging.NewLoggerFromConfig(&logging.Config{
		Level:  "info",
		Format: "json",
		Output: path,
		Fields: map[string]any{"service": "sonicjs", "pid": 7},
	})

	logger.Info().Msg("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.True(t, strings.Contains(line, `"service":"sonicjs"`))
	assert.True(t, strings.Contains(line, `"pid":7`))
	assert.True(t, strings.Contains(line, "written to file"))
}

func TestNopLogger(t *testing.T) {
	l := logging.NewNopLogger()
	require.NotNil(t, l)
	l.Info().Msg("discarded")
}

func TestConfigureReplacesDefault(t *testing.T) {
	original := *logging.Default()
	level := zerolog.GlobalLevel()
	t.Cleanup(func() {
		logging.SetDefault(original)
		zerolog.SetGlobalLevel(level)
	})

	logging.Configure(&logging.Config{Level: "warn", Format: "json", Output: "discard"})
	assert.Equal(t, zerolog.WarnLevel, logging.Default().GetLevel())
}
