package pipeline

import (
	"context"
	"net/http"
	"sync"
)

type routeInfoKey struct{}

// RouteInfo carries per-request dispatch results back to the pipeline.
type RouteInfo struct {
	mu    sync.Mutex
	route string
	err   error
}

// Route returns the matched route pattern, or "" if none matched.
func (ri *RouteInfo) Route() string {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.route
}

// SetRoute records the matched route pattern.
func (ri *RouteInfo) SetRoute(pattern string) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.route = pattern
}

// Err returns the error recorded by the route handler, if any.
func (ri *RouteInfo) Err() error {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.err
}

// SetErr records an error raised by the route handler.
func (ri *RouteInfo) SetErr(err error) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.err = err
}

// ContextWithRouteInfo attaches ri to ctx.
func ContextWithRouteInfo(ctx context.Context, ri *RouteInfo) context.Context {
	return context.WithValue(ctx, routeInfoKey{}, ri)
}

// RouteInfoFromContext returns the RouteInfo attached to ctx, or nil.
func RouteInfoFromContext(ctx context.Context) *RouteInfo {
	ri, _ := ctx.Value(routeInfoKey{}).(*RouteInfo)
	return ri
}

// SetRoute records the matched route pattern on the request, if it
// passes through a pipeline.
func SetRoute(r *http.Request, pattern string) {
	if ri := RouteInfoFromContext(r.Context()); ri != nil {
		ri.SetRoute(pattern)
	}
}
