package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, ParseLevel(in))
		})
	}
}

func TestNewWithWriter_JSONIncludesService(t *testing.T) {
	var buf bytes.Buffer
	cfg := ProductionConfig()
	cfg.Service = "catalog-cache"

	log := NewWithWriter(cfg, zapcore.AddSync(&buf))
	log.Info("merge completed")
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "merge completed", entry["msg"])
	assert.Equal(t, "catalog-cache", entry["service"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewWithWriter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := ProductionConfig()
	cfg.Level = "warn"

	log := NewWithWriter(cfg, zapcore.AddSync(&buf))
	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.log")
	cfg := ProductionConfig()
	cfg.Output = path

	log, err := New(cfg)
	require.NoError(t, err)
	log.Info("to file")
	require.NoError(t, log.Sync())
	assert.FileExists(t, path)
}

func TestNew_UnwritableFile(t *testing.T) {
	cfg := ProductionConfig()
	cfg.Output = filepath.Join(t.TempDir(), "missing", "dir", "catalog.log")

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewForEnvironment(t *testing.T) {
	log, err := NewForEnvironment("production")
	require.NoError(t, err)
	assert.NotNil(t, log)

	log, err = NewForEnvironment("development")
	require.NoError(t, err)
	assert.NotNil(t, log)
}
