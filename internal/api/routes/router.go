package routes

import (
	"net/http"

	"github.com/robotto-health/triage-backend/internal/api/handlers"
	"github.com/robotto-health/triage-backend/internal/api/middleware"
	"github.com/robotto-health/triage-backend/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	triageHandler *handlers.TriageHandler
	debugHandler  *handlers.DebugHandler
	healthHandler *handlers.HealthHandler

	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	triageHandler *handlers.TriageHandler,
	debugHandler *handlers.DebugHandler,
	healthHandler *handlers.HealthHandler,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux: http.NewServeMux(),

		triageHandler: triageHandler,
		debugHandler:  debugHandler,
		healthHandler: healthHandler,

		allowedOrigins: allowedOrigins,
		metrics:        metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	// Healthcheck
	r.mux.HandleFunc("GET /{$}", r.healthHandler.Healthcheck)

	// Triage endpoints
	r.mux.HandleFunc("POST /api/triage", r.triageHandler.Extract)
	r.mux.HandleFunc("GET /api/triage/debug", r.debugHandler.Registry)

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.RequestIDMiddleware(handler)

	// CORS wraps everything so preflights never reach the mux
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
