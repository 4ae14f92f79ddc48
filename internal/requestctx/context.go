package requestctx

import (
	"context"
	"log/slog"
)

type contextKey string

// Key is the typed context key used for storing the request Context.
var Key contextKey = "usage-reports/requestctx"

// Context carries the identifiers used to correlate log lines of one request.
type Context struct {
	RequestID string
	ClientIP  string
}

// WithContext embeds the request context into the parent context.
func WithContext(parent context.Context, rc *Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, Key, rc)
}

// FromContext retrieves the request context if present.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(Key).(*Context)
	return rc, ok && rc != nil
}

// Logger annotates base with the request identifiers found in ctx.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	rc, ok := FromContext(ctx)
	if !ok {
		return base
	}
	if rc.RequestID != "" {
		base = base.With("request_id", rc.RequestID)
	}
	if rc.ClientIP != "" {
		base = base.With("client_ip", rc.ClientIP)
	}
	return base
}
