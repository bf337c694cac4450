// Package logger sets up the process-wide slog JSON logger and carries the
// per-evaluation trace ID through context.Context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type ctxKey struct{}

// Init installs a JSON logger on stdout as the slog default and returns it.
func Init(service string, level slog.Level) *slog.Logger {
	l := New(os.Stdout, service, level)
	slog.SetDefault(l)
	return l
}

// New returns a JSON logger writing to w with the service attribute set.
func New(w io.Writer, service string, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With(slog.String("service", service))
}

// WithTraceID returns a copy of ctx carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// TraceID returns the trace ID stored in ctx, or "".
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID identifies one bar evaluation: "{symbol}-{bucket start ms}".
// Re-evaluating the same bucket yields the same ID.
func GenerateTraceID(symbol string, bucketStart time.Time) string {
	return symbol + "-" + strconv.FormatInt(bucketStart.UnixMilli(), 10)
}

// LogWithTrace returns the trace_id attribute pair for ctx, or nil.
//
//	slog.Info("msg", logger.LogWithTrace(ctx)...)
func LogWithTrace(ctx context.Context) []any {
	tid := TraceID(ctx)
	if tid == "" {
		return nil
	}
	return []any{slog.String("trace_id", tid)}
}

// FromContext returns the default logger, annotated with ctx's trace ID.
func FromContext(ctx context.Context) *slog.Logger {
	if attrs := LogWithTrace(ctx); attrs != nil {
		return slog.Default().With(attrs...)
	}
	return slog.Default()
}
