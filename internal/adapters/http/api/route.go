package api

import (
	"context"
	"net/http"
)

// RouteDependencies defines the interface for request resolution.
type RouteDependencies interface {
	ResolveRequest(ctx context.Context, timestamp, device, state string) (string, error)
}

// RouteHandler handles placement requests.
type RouteHandler struct {
	deps RouteDependencies
}

// NewRouteHandler creates a new route handler.
func NewRouteHandler(deps RouteDependencies) *RouteHandler {
	return &RouteHandler{deps: deps}
}

// HandleRoute handles GET /route?timestamp=&device=&state= requests by
// redirecting to the winning offer location.
func (h *RouteHandler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	location, err := h.deps.ResolveRequest(r.Context(), q.Get("timestamp"), q.Get("device"), q.Get("state"))
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Location", location)
	writeJSON(w, http.StatusFound, locationResponse{Location: location})
}
