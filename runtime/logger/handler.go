package logger

import (
	"context"
	"log/slog"
)

// ContextHandler adds the session fields carried in a context to every
// record. Common fields are written first; a context field with the same key
// replaces the common one so a record never carries both.
type ContextHandler struct {
	inner  slog.Handler
	common []slog.Attr
}

// NewContextHandler wraps inner. common is added to every record.
func NewContextHandler(inner slog.Handler, common ...slog.Attr) *ContextHandler {
	return &ContextHandler{inner: inner, common: common}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

//nolint:gocritic // slog.Handler takes the record by value
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	fromCtx := contextAttrs(ctx)
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)

	for _, attr := range h.common {
		if !hasKey(fromCtx, attr.Key) {
			out.AddAttrs(attr)
		}
	}
	out.AddAttrs(fromCtx...)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(a)
		return true
	})
	return h.inner.Handle(ctx, out)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), common: h.common}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name), common: h.common}
}

func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	for _, key := range allContextKeys {
		if s, ok := ctx.Value(key).(string); ok && s != "" {
			attrs = append(attrs, slog.String(string(key), s))
		}
	}
	return attrs
}

func hasKey(attrs []slog.Attr, key string) bool {
	for _, a := range attrs {
		if a.Key == key {
			return true
		}
	}
	return false
}

var _ slog.Handler = (*ContextHandler)(nil)
