package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name    string
		logsDir string
		want    string
	}{
		{
			name:    "basic path",
			logsDir: "logs",
			want:    filepath.Join("logs", "enginestate.20260212_213836.log"),
		},
		{
			name:    "relative path with dot",
			logsDir: "./logs",
			want:    filepath.Join(".", "logs", "enginestate.20260212_213836.log"),
		},
		{
			name:    "absolute path",
			logsDir: filepath.Join("/var", "log", "enginestate"),
			want:    filepath.Join("/var", "log", "enginestate", "enginestate.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LogFilePath(tt.logsDir, "enginestate", sessionStart))
		})
	}
}

func TestNewRotatingFile_WritesToSessionFile(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	w := NewRotatingFile(dir, "enginestate", start, false)
	t.Cleanup(func() { _ = w.Close() })

	assert.Equal(t, LogFilePath(dir, "enginestate", start), w.Filename)
	assert.Equal(t, 32, w.MaxSize)

	m := NewSlogManager()
	m.Setup(Options{File: w, Level: "info"})
	m.Logger().Info("rotated")

	assert.FileExists(t, w.Filename)
	assert.Equal(t, 256, NewRotatingFile(dir, "enginestate", start, true).MaxSize)
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestThrottler_AllowsOncePerInterval(t *testing.T) {
	th := NewThrottler(nil, 4)

	assert.True(t, th.Allow("enforce_7", 1000, 500))
	assert.False(t, th.Allow("enforce_7", 1499, 500))
	assert.True(t, th.Allow("enforce_8", 1499, 500), "keys are independent")
	assert.True(t, th.Allow("enforce_7", 1500, 500))
}

func TestThrottler_KeysAreBounded(t *testing.T) {
	th := NewThrottler(nil, 2)

	th.Allow("a", 0, 1000)
	th.Allow("b", 0, 1000)
	th.Allow("c", 0, 1000)

	assert.Equal(t, 2, th.Len())
	assert.True(t, th.Allow("a", 1, 1000), "evicted key logs again")
}

func TestThrottler_InfoWritesOnce(t *testing.T) {
	var buf bytes.Buffer
	th := NewThrottler(slog.New(slog.NewTextHandler(&buf, nil)), 0)

	for now := int64(0); now < 400; now += 16 {
		th.Info("ghost_spawn_9", now, 2000, "ghost spawned", "vehicle", 9)
	}
	th.Warn("prune", 0, 100, "pruned")

	assert.Equal(t, 1, strings.Count(buf.String(), "ghost spawned"))
	assert.Contains(t, buf.String(), "level=WARN")
}

func TestZerologAdapter(t *testing.T) {
	tests := []struct {
		level string
		log   func(l *ZerologAdapter)
	}{
		{"debug", func(l *ZerologAdapter) { l.Debug("msg", "key1", "value1", "key2", 42) }},
		{"info", func(l *ZerologAdapter) { l.Info("msg", "key1", "value1", "key2", 42) }},
		{"warn", func(l *ZerologAdapter) { l.Warn("msg", "key1", "value1", "key2", 42) }},
		{"error", func(l *ZerologAdapter) { l.Error("msg", "key1", "value1", "key2", 42) }},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(NewZerologAdapter(zerolog.New(&buf).Level(zerolog.DebugLevel)))

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "msg", entry["message"])
			assert.Equal(t, "value1", entry["key1"])
			assert.Equal(t, float64(42), entry["key2"])
		})
	}
}

func TestToFields(t *testing.T) {
	fields := toFields([]any{"a", 1, 2, "dropped", "b", "x", "odd"})
	assert.Equal(t, map[string]any{"a": 1, "b": "x"}, fields)
}
