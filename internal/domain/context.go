package domain

import "context"

type ctxKey string

const (
	sessionCtxKey ctxKey = "session_id"
	depthCtxKey   ctxKey = "orchestration_depth"
)

// ContextWithSessionID returns a new context carrying the session ID (ULID).
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionCtxKey, sessionID)
}

// SessionIDFromContext extracts the session ID from the context.
// Returns empty string if not set.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionCtxKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithDepth returns a new context carrying the orchestration depth.
// Depth is request-scoped ambient state: each agent stamps its own depth
// before executing tools, and because context values are immutable the
// caller's depth is restored on every exit path without explicit cleanup.
func ContextWithDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthCtxKey, depth)
}

// DepthFromContext extracts the orchestration depth from the context.
// Returns 0 (top level) if not set.
func DepthFromContext(ctx context.Context) int {
	if v, ok := ctx.Value(depthCtxKey).(int); ok {
		return v
	}
	return 0
}
