package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/usergw/internal/apperr"
	"github.com/vyrodovalexey/usergw/internal/pipeline"
)

// Built-in route paths.
const (
	PathMetrics = "/metrics"
	PathAPIRoot = "/api"
)

// RouteRegistrar mounts application routes on the router.
type RouteRegistrar interface {
	RegisterRoutes(r gin.IRouter)
}

// RouteRegistrarFunc adapts a function to RouteRegistrar.
type RouteRegistrarFunc func(r gin.IRouter)

// RegisterRoutes calls f(r).
func (f RouteRegistrarFunc) RegisterRoutes(r gin.IRouter) {
	f(r)
}

// routeCapture records the matched route pattern for telemetry and
// renders errors attached by handlers with c.Error. It must be the first
// gin middleware.
func routeCapture(errs *pipeline.ErrorHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		pipeline.SetRoute(c.Request, c.FullPath())

		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		if !apperr.IsClientError(err) {
			err = &apperr.HandlerFault{Err: err}
		}
		// gin commits a 200 once the chain returns, so the error is
		// rendered here rather than in the pipeline.
		errs.Handle(c.Writer, c.Request, err)
	}
}

// newRouter builds the gin engine. Unmatched routes answer with the
// structured 404 body; gin.Recovery is not installed so panics reach the
// pipeline.
func newRouter(errs *pipeline.ErrorHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.HandleMethodNotAllowed = false
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false
	engine.Use(routeCapture(errs))
	engine.NoRoute(gin.WrapH(pipeline.NotFoundHandler()))

	return engine
}

// trimTrailingSlash routes "/path/" like "/path" instead of redirecting.
// The request URI reported in errors is left as received.
func trimTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.URL.Path) > 1 && strings.HasSuffix(r.URL.Path, "/") {
			u := *r.URL
			u.Path = strings.TrimRight(u.Path, "/")
			if u.Path == "" {
				u.Path = "/"
			}
			u.RawPath = ""

			r2 := new(http.Request)
			*r2 = *r
			r2.URL = &u
			r = r2
		}
		next.ServeHTTP(w, r)
	})
}

// apiRootHandler describes the service at the API root.
func apiRootHandler(service, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": service,
			"version": version,
		})
	}
}
