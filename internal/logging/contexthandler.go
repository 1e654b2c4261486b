package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns attributes sampled at log time, such as the current
// game time.
type ContextProvider func() []slog.Attr

// ContextHandler appends the attributes of its providers to every record it
// handles. Providers run only for records that pass the level check.
type ContextHandler struct {
	inner     slog.Handler
	providers []ContextProvider
}

// NewContextHandler wraps inner. Nil providers are ignored.
func NewContextHandler(inner slog.Handler, providers ...ContextProvider) *ContextHandler {
	h := &ContextHandler{inner: inner}
	for _, p := range providers {
		if p != nil {
			h.providers = append(h.providers, p)
		}
	}
	return h
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, p := range h.providers {
		r.AddAttrs(p()...)
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), providers: h.providers}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), providers: h.providers}
}
