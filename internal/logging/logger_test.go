package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// bufferLogger builds a Logger writing JSON to an in-memory buffer.
func bufferLogger(t *testing.T, cfg *Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	core, err := newDualCore(cfg, zapcore.AddSync(buf), nil)
	require.NoError(t, err)
	return newLoggerFromCore(cfg, core), buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()
	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, logger.Underlying())
	assert.NoError(t, logger.Sync())
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	assert.Error(t, err)
}

func TestLogger_WritesServiceFieldAndContext(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false
	logger, buf := bufferLogger(t, cfg)

	ctx := WithSessionID(context.Background(), "sess-1")
	logger.Info(ctx, "selected resource", zap.String("resource", "static-deep"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "selected resource", lines[0]["msg"])
	assert.Equal(t, "switchboard", lines[0]["service"])
	assert.Equal(t, "sess-1", lines[0]["session.id"])
	assert.Equal(t, "static-deep", lines[0]["resource"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false
	cfg.Level = zapcore.WarnLevel
	logger, buf := bufferLogger(t, cfg)

	ctx := context.Background()
	logger.Debug(ctx, "debug")
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn")
	logger.Error(ctx, "error")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "warn", lines[0]["msg"])
	assert.Equal(t, "error", lines[1]["msg"])
	assert.False(t, logger.Enabled(zapcore.InfoLevel))
}

func TestLogger_TraceLevel(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false
	cfg.Level = TraceLevel
	logger, buf := bufferLogger(t, cfg)

	logger.Trace(context.Background(), "very verbose")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "very verbose", lines[0]["msg"])
}

func TestLogger_SamplingKeepsErrors(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Initial = 1
	cfg.Sampling.Thereafter = 1000
	logger, buf := bufferLogger(t, cfg)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		logger.Info(ctx, "repeated")
	}
	for i := 0; i < 5; i++ {
		logger.Error(ctx, "failure")
	}

	var infos, errs int
	for _, line := range decodeLines(t, buf) {
		switch line["msg"] {
		case "repeated":
			infos++
		case "failure":
			errs++
		}
	}
	assert.Equal(t, 1, infos)
	assert.Equal(t, 5, errs)
}

func TestLogger_WithAndNamed(t *testing.T) {
	tl := NewTestLogger()
	child := tl.Named("tracker").With(zap.String("component", "broadcast"))

	child.Info(context.Background(), "subscriber dropped")

	entries := tl.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "tracker", entries[0].LoggerName)
	tl.AssertField(t, "subscriber dropped", "component", "broadcast")
}

func TestLevelFromString(t *testing.T) {
	lvl, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, lvl)

	lvl, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = LevelFromString("loud")
	assert.Error(t, err)
}

func TestConfigFromApp(t *testing.T) {
	cfg, err := ConfigFromApp(appLogging("debug", "console"))
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	_, err = ConfigFromApp(appLogging("chatty", ""))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no outputs", func(c *Config) { c.Output.Stdout = false }},
		{"zero tick", func(c *Config) { c.Sampling.Tick = 0 }},
		{"negative caller skip", func(c *Config) { c.Caller.Skip = -1 }},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }},
		{"empty field value", func(c *Config) { c.Fields["env"] = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
