// Package router binds the fee API's route groups under a versioned prefix
// and reports what it bound.
package router

import (
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

// DefaultAPIVersion is the version segment of every API path
const DefaultAPIVersion = "v1"

// RouteInfo describes one bound route. Guarded routes run behind their
// group's middleware, typically bearer authentication.
type RouteInfo struct {
	Group   string
	Method  string
	Path    string
	Guarded bool
}

// Router collects route groups and binds them to the engine once
type Router struct {
	engine  *gin.Engine
	version string
	groups  []*Group
	mounted bool
}

// Option configures a Router
type Option func(*Router)

// WithAPIVersion replaces DefaultAPIVersion
func WithAPIVersion(version string) Option {
	return func(r *Router) {
		r.version = version
	}
}

// New creates a Router over engine
func New(engine *gin.Engine, opts ...Option) *Router {
	r := &Router{engine: engine, version: DefaultAPIVersion}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BasePath is the versioned API prefix, e.g. "/api/v1"
func (r *Router) BasePath() string {
	return "/api/" + r.version
}

// Group starts a route group at prefix below BasePath. The middleware wraps
// only this group's routes.
func (r *Router) Group(name, prefix string, middleware ...gin.HandlerFunc) *Group {
	g := &Group{name: name, prefix: prefix, middleware: middleware}
	r.groups = append(r.groups, g)
	return g
}

// Mount binds every group to the engine and returns the bound routes with
// their full paths. Mounting twice binds nothing new.
func (r *Router) Mount() []RouteInfo {
	if r.mounted {
		return nil
	}
	r.mounted = true

	api := r.engine.Group(r.BasePath())
	var bound []RouteInfo
	for _, g := range r.groups {
		bound = append(bound, g.bind(api, r.BasePath())...)
	}
	return bound
}

// Group is a named set of routes sharing a prefix and middleware
type Group struct {
	name       string
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
}

type route struct {
	method  string
	path    string
	handler gin.HandlerFunc
}

// GET adds a read route
func (g *Group) GET(path string, h gin.HandlerFunc) *Group {
	return g.add(http.MethodGet, path, h)
}

// POST adds a write route
func (g *Group) POST(path string, h gin.HandlerFunc) *Group {
	return g.add(http.MethodPost, path, h)
}

func (g *Group) add(method, path string, h gin.HandlerFunc) *Group {
	g.routes = append(g.routes, route{method: method, path: path, handler: h})
	return g
}

func (g *Group) bind(api *gin.RouterGroup, base string) []RouteInfo {
	rg := api.Group(g.prefix, g.middleware...)
	out := make([]RouteInfo, 0, len(g.routes))
	for _, rt := range g.routes {
		rg.Handle(rt.method, rt.path, rt.handler)
		out = append(out, RouteInfo{
			Group:   g.name,
			Method:  rt.method,
			Path:    joinPaths(joinPaths(base, g.prefix), rt.path),
			Guarded: len(g.middleware) > 0,
		})
	}
	return out
}

// joinPaths joins the way gin joins group paths
func joinPaths(base, relative string) string {
	if relative == "" {
		return base
	}
	joined := path.Join(base, relative)
	if strings.HasSuffix(relative, "/") && !strings.HasSuffix(joined, "/") {
		return joined + "/"
	}
	return joined
}
