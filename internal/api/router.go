package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nmslite/inventory-agent/internal/dispatch"
	"github.com/nmslite/inventory-agent/internal/middleware"
)

// NewRouter creates and configures the API router
func NewRouter(d *dispatch.Dispatcher, maxBatch int, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	healthHandler := NewHealthHandler(d.Units)
	taskHandler := NewTaskHandler(d, maxBatch, logger)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/units", taskHandler.ListUnits)
		r.Post("/tasks", taskHandler.Submit)
	})

	return r
}
