// Package requestctx carries the request ID from the HTTP edge down into
// domain logging.
package requestctx

import (
	"context"
	"log/slog"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	if value, ok := ctx.Value(requestIDKey).(string); ok {
		return value
	}
	return ""
}

// Logger returns base tagged with the request ID in ctx, or base itself
// outside a request. A nil base means slog.Default().
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if id := GetRequestID(ctx); id != "" {
		return base.With("requestId", id)
	}
	return base
}
