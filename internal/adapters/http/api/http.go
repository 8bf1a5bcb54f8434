// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/adroute/internal/domain/model"
	"github.com/okian/adroute/internal/domain/types"
	"github.com/okian/adroute/pkg/metrics"
)

const defaultMaxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	RegisterBuyer(ctx context.Context, b *model.Buyer) error
	GetBuyer(ctx context.Context, id string) (types.BuyerView, error)
	ResolveRequest(ctx context.Context, timestamp, device, state string) (string, error)

	// Ping reports store reachability for /healthz.
	Ping(ctx context.Context) error
	StoreKind() string
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	buyersHandler *BuyersHandler
	routeHandler  *RouteHandler
	maxBodyBytes  int64
}

// Option configures a Server.
type Option func(*Server)

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{maxBodyBytes: defaultMaxBodyBytes}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(statsProvider)
	s.buyersHandler = NewBuyersHandler(deps, s.maxBodyBytes)
	s.routeHandler = NewRouteHandler(deps)
	return s
}

// Register attaches all HTTP routes to router. Unknown paths and methods
// answer 404 "API not found".
func (s *Server) Register(router *httprouter.Router) {
	router.HandleMethodNotAllowed = false
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.NotFound = MetricsMiddleware(handleNotFound, "not_found")

	router.Handler(http.MethodPost, "/buyers", MetricsMiddleware(s.buyersHandler.HandlePostBuyer, "buyers"))
	router.Handler(http.MethodGet, "/buyers/:id", MetricsMiddleware(s.buyersHandler.HandleGetBuyer, "buyer"))
	router.Handler(http.MethodGet, "/route", MetricsMiddleware(s.routeHandler.HandleRoute, "route"))
	router.Handler(http.MethodGet, "/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	router.Handler(http.MethodGet, "/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
}

// Handler returns a router with every route registered, wrapped in request
// id propagation.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	s.Register(router)
	return RequestIDMiddleware(router)
}

type messageResponse struct {
	Message string `json:"message"`
}

type locationResponse struct {
	Location string `json:"location"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "not_found", MsgAPINotFound)
}
