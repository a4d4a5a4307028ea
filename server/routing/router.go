// Package routing wires the luagen HTTP surface: the generation route, health
// reporting, Prometheus metrics and the shared middleware stack.
package routing

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/teilomillet/luagen/config"
	"github.com/teilomillet/luagen/errors"
	"github.com/teilomillet/luagen/server/metrics"
	"github.com/teilomillet/luagen/server/middleware"
	"go.uber.org/zap"
)

// HealthCheck reports whether one component is healthy. Checks run on every
// /health request, so they must be cheap and must not call the upstream.
type HealthCheck func() bool

// Router handles HTTP routing for the server.
type Router struct {
	router chi.Router
	checks map[string]HealthCheck
	logger *zap.Logger
}

// NewRouter creates a router serving generate at cfg.Server.GeneratePath.
// m may be nil, which disables the metrics route and middleware.
func NewRouter(cfg *config.Config, generate http.Handler, m *metrics.Metrics, checks map[string]HealthCheck, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		router: chi.NewRouter(),
		checks: checks,
		logger: logger,
	}

	r.router.Use(middleware.RequestID)
	r.router.Use(middleware.RequestTimer)
	r.router.Use(errors.ErrorHandler(logger))
	r.router.Use(middleware.CORS)
	r.router.Use(middleware.Logging(logger))
	if m != nil {
		r.router.Use(middleware.PrometheusMetrics(m))
	}

	// Every method reaches the handler so it can answer 405 itself.
	r.router.Handle(cfg.Server.GeneratePath, generate)
	r.router.Get("/health", r.healthHandler())
	if m != nil && cfg.Metrics.Enabled {
		RegisterMetricsRoutes(r.router, cfg.Metrics.Path, m)
	}

	r.router.NotFound(func(w http.ResponseWriter, req *http.Request) {
		errors.WriteError(w, errors.NewError(errors.NotFoundError, "Not found",
			http.StatusNotFound, middleware.GetRequestID(req.Context()), nil, nil))
	})
	r.router.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		errors.WriteError(w, errors.NewMethodNotAllowedError(middleware.GetRequestID(req.Context()), req.Method))
	})

	return r
}

// healthHandler aggregates every check. It answers 503 if any check fails.
func (r *Router) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		names := make([]string, 0, len(r.checks))
		for name := range r.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		healthy := true
		services := make(map[string]string, len(names))
		for _, name := range names {
			if r.checks[name]() {
				services[name] = "healthy"
				continue
			}
			healthy = false
			services[name] = "unhealthy"
			r.logger.Warn("health check failed", zap.String("check", name))
		}

		status := "healthy"
		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			status = "unhealthy"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   status,
			"services": services,
		}); err != nil {
			r.logger.Error("failed to encode health response", zap.Error(err))
		}
	}
}

// ServeHTTP implements the http.Handler interface.
// Delegates request handling to the underlying Chi router.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
