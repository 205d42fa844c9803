// Package logging carries correlation ids through a context.Context and
// stamps them onto slog records.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type ctxKey int

const (
	modelIDKey ctxKey = iota
	nodeIDKey
	runIDKey
)

// Attribute names written by LogWith and CorrelationHandler.
const (
	AttrModelID = "model_id"
	AttrNodeID  = "node_id"
	AttrRunID   = "run_id"
)

var fields = []struct {
	key  ctxKey
	attr string
}{
	{modelIDKey, AttrModelID},
	{nodeIDKey, AttrNodeID},
	{runIDKey, AttrRunID},
}

// WithModelID returns a context carrying the workflow model id.
func WithModelID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, modelIDKey, id)
}

// WithNodeID returns a context carrying the node id being worked on.
func WithNodeID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, nodeIDKey, id)
}

// WithRunID returns a context carrying a batch or validation run id.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// ModelID returns the model id from ctx, or "".
func ModelID(ctx context.Context) string { return str(ctx, modelIDKey) }

// NodeID returns the node id from ctx, or "".
func NodeID(ctx context.Context) string { return str(ctx, nodeIDKey) }

// RunID returns the run id from ctx, or "".
func RunID(ctx context.Context) string { return str(ctx, runIDKey) }

func str(ctx context.Context, k ctxKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}

func attrs(ctx context.Context) []slog.Attr {
	var out []slog.Attr
	for _, f := range fields {
		if v := str(ctx, f.key); v != "" {
			out = append(out, slog.String(f.attr, v))
		}
	}
	return out
}

// LogWith returns logger enriched with the non-empty correlation ids in ctx.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range attrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// Discard returns a logger that drops everything. Managers use it when no
// logger is configured.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// New builds a correlation-aware logger writing to w. format is "json" or
// "text"; level is one of debug, info, warn, error (default info).
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var inner slog.Handler
	if strings.EqualFold(format, "json") {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(NewCorrelationHandler(inner))
}

// ParseLevel maps a level name to a slog.Level, falling back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// CorrelationHandler wraps an slog.Handler and adds the correlation ids found
// in the record's context, so logger.InfoContext(ctx, ...) needs no extra
// attributes.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps inner.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(attrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(as []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(as)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
