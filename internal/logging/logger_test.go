package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/complyd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_FileOutputRedacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "complyd.log")

	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.File.Path = path
	cfg.Sampling.Enabled = false

	l, err := NewLogger(cfg, nil)
	require.NoError(t, err)

	l.Info(context.Background(), "generator configured",
		zap.String("model", "llama3.2"),
		zap.String("api_key", "sk-live-123"),
	)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "generator configured")
	assert.Contains(t, out, "llama3.2")
	assert.Contains(t, out, redactedValue)
	assert.NotContains(t, out, "sk-live-123")
	assert.Contains(t, out, `"service":"complyd"`)
}

func TestConfigValidate(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Output.Stdout = false
	assert.Error(t, cfg.Validate())
}

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(config.LoggingConfig{
		Level:  "trace",
		Format: "console",
		File:   config.LogFileConfig{Path: "/var/log/complyd.log", MaxSizeMB: 10},
		Fields: map[string]any{"env": "test"},
	})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, 10, cfg.Output.File.MaxSizeMB)
	assert.Equal(t, "test", cfg.Fields["env"])

	_, err = FromAppConfig(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestLevelFromString(t *testing.T) {
	l, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, l)

	l, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, l)

	l, err = LevelFromString("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, l)
}

func TestContextFields(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithRequestID(WithSessionID(context.Background(), "sess-1"), "req_42")

	tl.Info(ctx, "query received", zap.Int("length", 12))
	tl.Trace(ctx, "prompt built")

	tl.AssertLogged(t, zapcore.InfoLevel, "query received")
	tl.AssertLogged(t, TraceLevel, "prompt built")
	tl.AssertField(t, "query received", "session.id", "sess-1")
	tl.AssertField(t, "query received", "request.id", "req_42")
}

func TestWithSessionID_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() {
		WithSessionID(context.Background(), "bad id!")
	})
	assert.Error(t, ValidateID(strings.Repeat("a", maxIDLen+1)))
	assert.NoError(t, ValidateID("default"))
}

func TestFromContext_DefaultsToNop(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	l.Info(context.Background(), "discarded")

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Warn(ctx, "routed")
	tl.AssertLogged(t, zapcore.WarnLevel, "routed")
}

func TestSecretField(t *testing.T) {
	f := Secret("token", config.Secret("abc"))
	assert.Equal(t, redactedValue, f.String)
	assert.Equal(t, "", Secret("token", "").String)
}
