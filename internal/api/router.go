package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency check in GET /health.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health and metrics (no auth required for basic monitoring)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/relay", func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/start", s.handleStartRelay)
			r.Post("/stop", s.handleStopRelay)
			r.Get("/status", s.handleRelayStatus)
			r.Get("/config", s.handleGetRelayConfig)
			r.Put("/config", s.handleUpdateRelayConfig)
			r.Post("/open", s.handleOpenRelayURL)
			r.Get("/health", s.handleRelayHealth)
			r.Get("/events", s.handleListEvents)
		})

		// WebSocket accepts the token as a query parameter
		r.With(s.wsAuthMiddleware).Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status and the state of each
// optional dependency. Any failing dependency turns the status to
// "degraded" and the response code to 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(s.checks))
	healthy := true
	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := check.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = "error: " + err.Error()
			healthy = false
			continue
		}
		components[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
