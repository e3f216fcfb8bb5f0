package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// UserKey is the context key for the acting user.
	UserKey contextKey = "user"

	// ConfigKeyKey is the context key for the configuration key being operated on.
	ConfigKeyKey contextKey = "config_key"

	// OperationIDKey is the context key for merge and retention run identifiers.
	OperationIDKey contextKey = "operation_id"
)

// contextFields lists the keys copied onto every record, in output order.
var contextFields = []contextKey{RequestIDKey, UserKey, ConfigKeyKey, OperationIDKey}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

// WithUser adds a user identifier to the context.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// GetUser retrieves the user identifier from the context.
func GetUser(ctx context.Context) string {
	return getString(ctx, UserKey)
}

// WithConfigKey adds a configuration key to the context.
func WithConfigKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ConfigKeyKey, key)
}

// GetConfigKey retrieves the configuration key from the context.
func GetConfigKey(ctx context.Context) string {
	return getString(ctx, ConfigKeyKey)
}

// WithOperationID adds an operation identifier to the context.
func WithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, OperationIDKey, id)
}

// GetOperationID retrieves the operation identifier from the context.
func GetOperationID(ctx context.Context) string {
	return getString(ctx, OperationIDKey)
}

func getString(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// ContextHandler is a slog.Handler that adds the context fields above to
// every record logged through the *Context methods.
type ContextHandler struct {
	next slog.Handler
}

// NewContextHandler wraps next.
func NewContextHandler(next slog.Handler) *ContextHandler {
	return &ContextHandler{next: next}
}

// Enabled implements slog.Handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, key := range contextFields {
		if v := getString(ctx, key); v != "" {
			r.AddAttrs(slog.String(string(key), v))
		}
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name)}
}
