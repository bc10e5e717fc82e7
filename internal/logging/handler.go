// Package logging configures the masked slog pipeline and the per-call
// logging helper used by every provider wrapper.
package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"llmwrapper/internal/security"
)

// MaskingHandler redacts credentials from every record before the inner
// handler formats it. Redaction happens here, at the sink, so no call site
// can bypass it.
type MaskingHandler struct {
	inner slog.Handler
}

// NewMaskingHandler wraps inner.
func NewMaskingHandler(inner slog.Handler) *MaskingHandler {
	return &MaskingHandler{inner: inner}
}

func (h *MaskingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *MaskingHandler) Handle(ctx context.Context, r slog.Record) error {
	masked := slog.NewRecord(r.Time, r.Level, security.MaskText(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		masked.AddAttrs(maskAttr(a))
		return true
	})
	return h.inner.Handle(ctx, masked)
}

func (h *MaskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = maskAttr(a)
	}
	return &MaskingHandler{inner: h.inner.WithAttrs(masked)}
}

func (h *MaskingHandler) WithGroup(name string) slog.Handler {
	return &MaskingHandler{inner: h.inner.WithGroup(name)}
}

func maskAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	kind := a.Value.Kind()

	if kind == slog.KindGroup {
		group := a.Value.Group()
		masked := make([]slog.Attr, len(group))
		for i, ga := range group {
			masked[i] = maskAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(masked...)}
	}
	if security.IsSensitiveKey(a.Key) {
		return slog.Any(a.Key, security.MaskSecret(a.Value.Any()))
	}

	switch kind {
	case slog.KindString:
		return slog.String(a.Key, security.MaskText(a.Value.String()))
	case slog.KindAny:
		switch v := a.Value.Any().(type) {
		case error:
			return slog.String(a.Key, security.MaskText(v.Error()))
		case map[string]any, map[string]string, []any, []string:
			return slog.Any(a.Key, security.MaskSensitiveData(v))
		case fmt.Stringer:
			return slog.String(a.Key, security.MaskText(v.String()))
		default:
			// Structs, pointers and other containers are walked field by
			// field; the inner handler formats the masked copy.
			return slog.Any(a.Key, security.MaskSensitiveData(v))
		}
	}
	return a
}

// fanoutHandler sends each record to every handler that accepts its level.
type fanoutHandler []slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
