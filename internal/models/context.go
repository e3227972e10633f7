package models

import "context"

type originContextKey struct{}

// WithOrigin tags a context with the entry point that started an operation
// (e.g. "cli", "http", "bridge:prime"). Events record it for auditing.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originContextKey{}, origin)
}

// OriginFrom returns the origin attached to ctx, or "" if absent.
func OriginFrom(ctx context.Context) string {
	origin, _ := ctx.Value(originContextKey{}).(string)
	return origin
}
