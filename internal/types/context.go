package types

import "context"

// ctxKey is an unexported type for context keys defined in this package,
// preventing collisions with keys defined elsewhere.
type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID returns a copy of ctx carrying the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID extracts the request ID from ctx, or "" if none is set.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
