package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// FeedPrefix is where the V2 feed is mounted
const FeedPrefix = "/api/v2"

// RouteMetadata contains metadata for a route
type RouteMetadata struct {
	Path        string // mux path template
	Method      string
	RequiresKey bool
	Handler     http.HandlerFunc
	Description string
	RateLimit   int // requests per minute, 0 = no limit
}

// RouteRegistry manages route metadata and registration
type RouteRegistry struct {
	routes []RouteMetadata
}

// NewRouteRegistry creates a new route registry
func NewRouteRegistry() *RouteRegistry {
	return &RouteRegistry{
		routes: make([]RouteMetadata, 0),
	}
}

// RegisterRoute registers a route with metadata
func (rr *RouteRegistry) RegisterRoute(path, method string, requiresKey bool, handler http.HandlerFunc, description string) {
	rr.RegisterRouteWithRateLimit(path, method, requiresKey, handler, description, 0)
}

// RegisterRouteWithRateLimit registers a route with rate limiting
func (rr *RouteRegistry) RegisterRouteWithRateLimit(path, method string, requiresKey bool, handler http.HandlerFunc, description string, rateLimit int) {
	rr.routes = append(rr.routes, RouteMetadata{
		Path:        path,
		Method:      method,
		RequiresKey: requiresKey,
		Handler:     handler,
		Description: description,
		RateLimit:   rateLimit,
	})
}

// GetRouteMetadata retrieves metadata for a path template and method
func (rr *RouteRegistry) GetRouteMetadata(path, method string) (RouteMetadata, bool) {
	for _, route := range rr.routes {
		if route.Path == path && route.Method == method {
			return route, true
		}
	}
	return RouteMetadata{}, false
}

// GetAllRoutes returns all registered routes
func (rr *RouteRegistry) GetAllRoutes() []RouteMetadata {
	return rr.routes
}

// routeFor returns the metadata of the route mux matched for r
func (rr *RouteRegistry) routeFor(r *http.Request) (RouteMetadata, bool) {
	route := mux.CurrentRoute(r)
	if route == nil {
		return RouteMetadata{}, false
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return RouteMetadata{}, false
	}
	return rr.GetRouteMetadata(tpl, r.Method)
}

// mount registers every route on the router
func (rr *RouteRegistry) mount(router *mux.Router) {
	for _, route := range rr.routes {
		router.HandleFunc(route.Path, route.Handler).Methods(route.Method)
	}
}

// SetupRoutes configures all routes with their metadata
func (s *Server) SetupRoutes(router *mux.Router) *RouteRegistry {
	registry := NewRouteRegistry()

	// Service endpoints - public, server root
	registry.RegisterRoute("/health", http.MethodGet, false, s.healthHandler, "Health check")
	registry.RegisterRoute("/metrics", http.MethodGet, false, s.metrics.handler().ServeHTTP, "Prometheus metrics")

	// Feed reads - public, rate limited per client
	registry.RegisterRoute(FeedPrefix+"/$metadata", http.MethodGet, false, s.metadataHandler, "Service metadata")
	registry.RegisterRouteWithRateLimit(FeedPrefix+"/Packages(Id='{id}',Version='{version}')", http.MethodGet, false, s.entryHandler, "Get package entry", 600)
	registry.RegisterRouteWithRateLimit(FeedPrefix+"/Packages()", http.MethodGet, false, s.collectionHandler, "Query packages", 600)
	registry.RegisterRouteWithRateLimit(FeedPrefix+"/Packages", http.MethodGet, false, s.collectionHandler, "Query packages", 600)
	registry.RegisterRouteWithRateLimit(FeedPrefix+"/package/{id}/{version}", http.MethodGet, false, s.downloadHandler, "Download package", 120)

	// Writes - require an API key
	registry.RegisterRouteWithRateLimit(FeedPrefix+"/package", http.MethodPut, true, s.pushHandler, "Push package", 60)
	registry.RegisterRouteWithRateLimit(FeedPrefix+"/package/{id}/{version}", http.MethodDelete, true, s.deleteHandler, "Unlist package", 60)

	registry.mount(router)
	return registry
}
