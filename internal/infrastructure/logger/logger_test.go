package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	t.Run("builds a logger for each format", func(t *testing.T) {
		for _, format := range []string{"json", "console"} {
			l, err := New(&Config{Level: "debug", Format: format, Output: "stdout"})
			require.NoError(t, err)
			assert.NotNil(t, l)
		}
	})

	t.Run("writes json lines to a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "engine.log")

		l, err := New(&Config{Level: "info", Format: "json", Output: path})
		require.NoError(t, err)
		l.Info("balance updated", zap.Int("quantity_after", 70))
		require.NoError(t, Sync(l))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var line map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &line))
		assert.Equal(t, "balance updated", line["msg"])
		assert.Equal(t, "info", line["level"])
		assert.EqualValues(t, 70, line["quantity_after"])
	})

	t.Run("filters entries below the configured level", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "engine.log")

		l, err := New(&Config{Level: "warn", Format: "json", Output: path})
		require.NoError(t, err)
		l.Info("dropped")
		l.Warn("kept")
		require.NoError(t, Sync(l))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "dropped")
		assert.Contains(t, string(data), "kept")
	})

	t.Run("tees entries into extra cores", func(t *testing.T) {
		extra, recorded := observer.New(zapcore.InfoLevel)

		l, err := New(&Config{Level: "info", Format: "json", Output: filepath.Join(t.TempDir(), "x.log")}, extra)
		require.NoError(t, err)
		l.Info("posted")

		require.Len(t, recorded.All(), 1)
		assert.Equal(t, "posted", recorded.All()[0].Message)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"ERROR", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"unknown", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.level))
		})
	}
}

func TestCreateWriter(t *testing.T) {
	t.Run("falls back to stdout when the file cannot be opened", func(t *testing.T) {
		w := createWriter(filepath.Join(t.TempDir(), "missing", "dir", "engine.log"))
		assert.NotNil(t, w)
	})
}
