// Package router sets up all HTTP routes and middleware chains for the
// syncpress server. The webhook and admin groups are mounted per the
// configured role: a publisher serves the deploy trigger API, a consumer
// serves the deploy webhook, and "both" serves everything.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"syncpress/internal/config"
	"syncpress/internal/handlers"
	"syncpress/internal/metrics"
	"syncpress/internal/middleware"
)

// New creates and returns the configured Chi router with all middleware
// and route groups wired up.
func New(cfg *config.Config, webhook *handlers.Webhook, admin *handlers.Admin) chi.Router {
	r := chi.NewRouter()

	// Global middleware — applied to every request.
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	// Health check and metrics — no auth.
	r.Get("/health", healthHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Deploy webhook — consumer role. Signature auth happens inside the
	// handler; the rate limiter keeps unauthenticated floods off the
	// verifier.
	if cfg.ServesConsumer() {
		limiter := middleware.NewRateLimiter(60, time.Minute)
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Post("/sync/deploy", webhook.Deploy)
		})
	}

	// Admin JSON API — bearer token when configured.
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireToken(cfg.AdminToken))

		if cfg.ServesPublisher() {
			r.Route("/consumers", func(r chi.Router) {
				r.Get("/", admin.ConsumersList)
				r.Post("/", admin.ConsumerCreate)
				r.Put("/{id}", admin.ConsumerUpdate)
				r.Delete("/{id}", admin.ConsumerDelete)
			})

			r.Route("/templates", func(r chi.Router) {
				r.Get("/", admin.SourcesList)
				r.Post("/", admin.SourceCreate)
				r.Put("/{id}", admin.SourceUpdate)
				r.Get("/{id}/versions", admin.VersionsList)
				r.Post("/{id}/deploy", admin.Deploy)
			})
		}

		if cfg.ServesConsumer() {
			r.Get("/mappings", admin.MappingsList)
			r.Get("/local-templates", admin.LocalTemplatesList)

			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", admin.JobsList)
				r.Get("/{id}", admin.JobGet)
				r.Post("/{id}/retry", admin.JobRetry)
			})

			r.Get("/snapshots/{globalID}", admin.SnapshotsList)
			r.Post("/rollback/{globalID}", admin.Rollback)
		}
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
