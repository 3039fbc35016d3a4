// Package api serves the worker's ops endpoints: health, metrics and run
// submission and lookup.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/api/handlers"
	"github.com/testforge/a11yforge/internal/api/middleware"
	"github.com/testforge/a11yforge/internal/observability"
	"github.com/testforge/a11yforge/pkg/httputil"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Router holds the HTTP router and its dependencies
type Router struct {
	chi.Router
	logger *zap.Logger
}

// RouterConfig contains configuration for the router
type RouterConfig struct {
	Reports   handlers.ReportStore
	Submitter handlers.Submitter
	Limiter   middleware.RateLimiter
	Metrics   *observability.Metrics

	// Dependencies checked by /ready, keyed by name
	Checks map[string]HealthChecker

	APIToken       string
	RateLimit      int
	MaxRequestSize int64

	// Root that client supplied work directories resolve under
	WorkRoot string

	Logger *zap.Logger
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(cfg.Logger).Handler)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Handler)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.HTTPMiddleware)
	}
	r.Use(chimw.Timeout(60 * time.Second))

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(cfg.Checks))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.NewTokenAuthMiddleware(cfg.APIToken).Handler)
		r.Use(middleware.NewRateLimitMiddleware(cfg.Limiter, cfg.RateLimit, cfg.Logger).Handler)

		runHandler := handlers.NewRunHandler(cfg.Reports, cfg.Submitter, cfg.WorkRoot, cfg.MaxRequestSize, cfg.Logger)

		r.Route("/runs", func(r chi.Router) {
			r.Post("/", runHandler.Create)
			r.Get("/{id}", runHandler.Get)
			r.Get("/{id}/status", runHandler.Status)
		})
	})

	return &Router{
		Router: r,
		logger: cfg.Logger,
	}
}

// healthHandler returns basic health status
func healthHandler(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "a11yforge-worker",
	})
}

// readyHandler checks if all dependencies are ready
func readyHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := make(map[string]string, len(checks))
		allHealthy := true

		for name, checker := range checks {
			if checker == nil {
				results[name] = "not configured"
				continue
			}
			if err := checker.Health(r.Context()); err != nil {
				results[name] = "unhealthy: " + err.Error()
				allHealthy = false
			} else {
				results[name] = "healthy"
			}
		}

		status := http.StatusOK
		statusText := "ready"
		if !allHealthy {
			status = http.StatusServiceUnavailable
			statusText = "not ready"
		}

		httputil.JSON(w, status, map[string]any{
			"status": statusText,
			"checks": results,
		})
	}
}
