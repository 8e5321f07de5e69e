package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

// CorrelationIDKey is the context key for correlation ID
const CorrelationIDKey contextKey = "correlation_id"

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// GetCorrelationID returns the correlation ID stored in ctx, or "".
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// GenerateCorrelationID generates a new UUID-based correlation ID
func GenerateCorrelationID() string {
	return uuid.New().String()
}

// EnsureCorrelationID returns ctx unchanged if it already carries an ID,
// otherwise a derived context with a fresh one.
func EnsureCorrelationID(ctx context.Context) context.Context {
	if GetCorrelationID(ctx) != "" {
		return ctx
	}
	return WithCorrelationID(ctx, GenerateCorrelationID())
}
