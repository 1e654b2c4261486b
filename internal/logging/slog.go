package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger is the leveled key-value surface shared by *slog.Logger and
// ZerologAdapter. Background workers accept it so they can log through either.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

var _ Logger = (*slog.Logger)(nil)

// stdout is the console sink, swapped out in tests.
var stdout io.Writer = os.Stdout

// Options selects the outputs of a SlogManager.
type Options struct {
	// File receives text records. When nil, records go to stdout instead.
	File io.Writer
	// GELF, when set, receives JSON records (a *gelf.Writer in production).
	GELF io.Writer
	// Level is debug, info, warn or error.
	Level string
	// Context adds dynamic attributes, such as game time, to every record.
	Context ContextProvider
	// Attrs are static attributes attached to every record.
	Attrs []slog.Attr
}

// SlogManager owns the process slog.Logger.
type SlogManager struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

// NewSlogManager creates a manager. Logger() falls back to slog.Default()
// until Setup is called.
func NewSlogManager() *SlogManager {
	return &SlogManager{level: new(slog.LevelVar)}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func handlerOptions(level slog.Leveler) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}
}

// Setup builds the logger from opts, replacing any previous one.
func (m *SlogManager) Setup(opts Options) {
	m.level.Set(parseLevel(opts.Level))
	ho := handlerOptions(m.level)

	var handlers []slog.Handler
	if opts.File != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.File, ho))
	} else {
		handlers = append(handlers, slog.NewTextHandler(stdout, ho))
	}
	if opts.GELF != nil {
		handlers = append(handlers, slog.NewJSONHandler(opts.GELF, ho))
	}

	var h slog.Handler = NewMultiHandler(handlers...)
	if opts.Context != nil {
		h = NewContextHandler(h, opts.Context)
	}
	if len(opts.Attrs) > 0 {
		h = h.WithAttrs(opts.Attrs)
	}

	m.logger = slog.New(h)
	m.logger.Info("Logging initialized", "level", m.level.Level().String())
}

// SetLevel changes the minimum level of the live logger.
func (m *SlogManager) SetLevel(level string) {
	m.level.Set(parseLevel(level))
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// levelFloor drops records below min before they reach inner.
type levelFloor struct {
	min   slog.Level
	inner slog.Handler
}

func (h *levelFloor) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.min && h.inner.Enabled(ctx, level)
}

func (h *levelFloor) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *levelFloor) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelFloor{min: h.min, inner: h.inner.WithAttrs(attrs)}
}

func (h *levelFloor) WithGroup(name string) slog.Handler {
	return &levelFloor{min: h.min, inner: h.inner.WithGroup(name)}
}

// WithMinLevel returns a logger sharing l's outputs that drops records below
// level, whatever l's own level is.
func WithMinLevel(l *slog.Logger, level slog.Level) *slog.Logger {
	return slog.New(&levelFloor{min: level, inner: l.Handler()})
}
