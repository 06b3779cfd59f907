package audit

import (
	"context"
	"sync/atomic"
)

// RequestContext is the per-request audit scope. It is established once at
// the dispatch boundary and travels with the request's context.Context, so
// every piece of code on the request's call chain (including goroutines
// started with that context) sees the same instance. Concurrent requests
// each get their own instance; there is no shared global.
type RequestContext struct {
	CorrelationID string
	PackName      string
	Method        string
	Path          string

	ActorID   string
	ActorName string
	ActorType ActorType
	SessionID string

	IPAddress string
	UserAgent string

	// writes counts persisted audit events for this request. The deriver
	// only runs after the handler finished, so contention is sequential;
	// the atomic keeps the counter safe for context-propagated goroutines.
	writes atomic.Int64
}

// Writes returns how many audit events have been persisted for this request.
func (rc *RequestContext) Writes() int64 {
	return rc.writes.Load()
}

// MarkWritten increments the request's audit write counter.
func (rc *RequestContext) MarkWritten() {
	rc.writes.Add(1)
}

type requestContextKey struct{}

// WithRequestContext attaches an audit RequestContext to ctx. Nested
// establishment is not supported; callers establish exactly one scope per
// logical request.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the active audit scope, or false when called
// outside any established scope.
func RequestContextFrom(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}
