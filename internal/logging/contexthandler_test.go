package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHandler_EvaluatesProviderPerRecord(t *testing.T) {
	var buf bytes.Buffer
	now := int64(0)
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		return []slog.Attr{slog.Int64("gameTime", now)}
	})
	logger := slog.New(h)

	logger.Info("first")
	now = 16
	logger.Info("second")

	assert.Contains(t, buf.String(), "gameTime=0")
	assert.Contains(t, buf.String(), "gameTime=16")
}

func TestContextHandler_WithAttrsKeepsProvider(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		return []slog.Attr{slog.String("session", "s1")}
	})

	slog.New(h.WithAttrs([]slog.Attr{slog.String("feature", "stall")})).Info("hi")
	slog.New(h.WithGroup("g")).Info("grouped", "k", "v")

	assert.Contains(t, buf.String(), "feature=stall")
	assert.Contains(t, buf.String(), "session=s1")
	assert.Contains(t, buf.String(), "g.k=v")
	assert.Equal(t, h, h.WithGroup(""))
}

func TestContextHandler_NilProvider(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil), nil)).Info("plain")
	assert.Contains(t, buf.String(), "plain")
}

func TestContextHandler_MultipleProviders(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		func() []slog.Attr { return []slog.Attr{slog.Int64("gameTime", 5)} },
		nil,
		func() []slog.Attr { return []slog.Attr{slog.String("session", "abc")} },
	)
	require.Len(t, h.providers, 2)

	called := false
	quiet := NewContextHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		func() []slog.Attr { called = true; return nil })

	slog.New(h).Info("both")
	slog.New(quiet).Debug("filtered")

	assert.Contains(t, buf.String(), "gameTime=5 session=abc")
	assert.False(t, called, "providers do not run for filtered records")
}
