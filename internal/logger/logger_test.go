package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/pricing-sync/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"unknown", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestBuildFileOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.LogConfig{
		Level:  "debug",
		Format: "json",
		Output: "file",
		File: config.LogFileConfig{
			Path:     dir,
			Filename: "test.log",
			MaxSize:  1,
		},
		Modules: map[string]string{ModuleSync: "warn"},
	}

	l, modules, err := build(cfg)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Contains(t, modules, ModuleSync)
	assert.False(t, modules[ModuleSync].Core().Enabled(zapcore.InfoLevel))
	assert.True(t, modules[ModuleSync].Core().Enabled(zapcore.WarnLevel))
}

func TestSetLevel(t *testing.T) {
	SetLevel("error")
	assert.Equal(t, "error", GetLevel())
	SetLevel("info")
	assert.Equal(t, "info", GetLevel())
}

func TestGetModuleLoggerFallback(t *testing.T) {
	// 未配置的模块退回到全局日志器
	assert.NotNil(t, GetModuleLogger("not-configured"))
	assert.NotPanics(t, func() {
		LogSyncEvent("test", "default")
		LogRemoteOperation("pull", "pricing_sync", 0, nil)
	})
}

func TestLogWebSocketMessage(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	mu.Lock()
	prev, prevModules := logger, moduleLoggers
	logger, moduleLoggers = zap.New(core), nil
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		logger, moduleLoggers = prev, prevModules
		mu.Unlock()
	})

	LogWebSocketMessage("in", "visibility", `{"visible":true}`)

	entries := logs.FilterMessage("ws_message").All()
	require.Len(t, entries, 1)
	assert.Equal(t, ModuleWebSocket, entries[0].LoggerName)
	fields := entries[0].ContextMap()
	assert.Equal(t, "in", fields["direction"])
	assert.Equal(t, "visibility", fields["type"])
}
