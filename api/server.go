/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. Metrics:    Prometheus request counters/latencies
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/orders/*        Demand, sync, allocations, agency allocation
  /api/measurements/*  Unit lookups and packaging adjustment
  /api/allocations/*   Manual edits and agency listings
  /healthz             Liveness
  /metrics             Prometheus exposition

SEE ALSO:
  - handlers.go: Handler implementations
  - metrics.go: Prometheus middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, m *Metrics) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if m != nil {
		r.Use(m.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/orders/{orderID}", func(r chi.Router) {
			r.Get("/demand", h.GetDemand)
			r.Post("/raw-materials/sync", h.SyncRawMaterials)
			r.Get("/allocations", h.ListAllocations)
			r.Post("/agency-allocations", h.AllocateAgencies)
		})

		r.Route("/measurements/{id}", func(r chi.Router) {
			r.Get("/smallest", h.GetSmallestUnit)
			r.Get("/smallest-value", h.GetSmallestValue)
			r.Get("/adjusted-quantity", h.GetAdjustedQuantity)
		})

		r.Route("/allocations", func(r chi.Router) {
			r.Put("/quantities", h.UpdateQuantities)
			r.Get("/{id}/agencies", h.ListAgencies)
		})
	})

	// Operational endpoints
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	return r
}
