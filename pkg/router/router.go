package router

import (
	"strings"

	"github.com/valyala/fasthttp"
)

// RouteKey is the user value holding the matched route pattern, used as a
// low-cardinality metrics label.
const RouteKey = "route"

// Middleware wraps a handler.
type Middleware func(fasthttp.RequestHandler) fasthttp.RequestHandler

// Router dispatches by method and path. Patterns use {name} for a single
// path segment; matched values are stored as request user values.
type Router struct {
	routes     map[string][]route
	middleware []Middleware
	notFound   fasthttp.RequestHandler
}

type route struct {
	pattern  string
	segments []segment
	handler  fasthttp.RequestHandler
}

type segment struct {
	name    string
	isParam bool
}

func New() *Router {
	return &Router{routes: make(map[string][]route)}
}

// Use appends middleware applied to every route, outermost first.
func (r *Router) Use(mw ...Middleware) {
	r.middleware = append(r.middleware, mw...)
}

// Handler returns the router wrapped in its middleware.
func (r *Router) Handler() fasthttp.RequestHandler {
	h := fasthttp.RequestHandler(r.dispatch)
	for i := len(r.middleware) - 1; i >= 0; i-- {
		h = r.middleware[i](h)
	}
	return h
}

func (r *Router) dispatch(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())
	path := string(ctx.Path())
	if rt, values, ok := r.lookup(method, path); ok {
		for k, v := range values {
			ctx.SetUserValue(k, v)
		}
		ctx.SetUserValue(RouteKey, rt.pattern)
		rt.handler(ctx)
		return
	}
	for m := range r.routes {
		if m == method {
			continue
		}
		if _, _, ok := r.lookup(m, path); ok {
			ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
			return
		}
	}
	if r.notFound != nil {
		r.notFound(ctx)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNotFound)
}

func (r *Router) lookup(method, path string) (route, map[string]string, bool) {
	for _, rt := range r.routes[method] {
		if values, ok := match(path, rt.segments); ok {
			return rt, values, true
		}
	}
	return route{}, nil, false
}

func (r *Router) GET(path string, h fasthttp.RequestHandler) { r.add("GET", path, h) }
func (r *Router) POST(path string, h fasthttp.RequestHandler) { r.add("POST", path, h) }
func (r *Router) PUT(path string, h fasthttp.RequestHandler) { r.add("PUT", path, h) }
func (r *Router) DELETE(path string, h fasthttp.RequestHandler) { r.add("DELETE", path, h) }

func (r *Router) NotFound(h fasthttp.RequestHandler) {
	r.notFound = h
}

func (r *Router) add(method, path string, h fasthttp.RequestHandler) {
	r.routes[method] = append(r.routes[method], route{pattern: path, segments: parse(path), handler: h})
}

func parse(path string) []segment {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	segs := make([]segment, len(parts))
	for i, part := range parts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") && len(part) > 2 {
			segs[i] = segment{name: part[1 : len(part)-1], isParam: true}
		} else {
			segs[i] = segment{name: part}
		}
	}
	return segs
}

func match(path string, segs []segment) (map[string]string, bool) {
	path = strings.Trim(path, "/")
	var parts []string
	if path != "" {
		parts = strings.Split(path, "/")
	}
	if len(parts) != len(segs) {
		return nil, false
	}
	values := make(map[string]string)
	for i, seg := range segs {
		if seg.isParam {
			if parts[i] == "" {
				return nil, false
			}
			values[seg.name] = parts[i]
			continue
		}
		if seg.name != parts[i] {
			return nil, false
		}
	}
	return values, true
}

// Param returns a path parameter captured by the matched route.
func Param(ctx *fasthttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}
