/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in error logs
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/users/*     Registration, credits, referrals, calculations
  /api/payments/*  Provider webhook
  /api/admin/*     Rate administration
  /api/health      Liveness and database check
  /metrics         Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/serve.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured. An empty
// allowedOrigins allows any origin.
func NewRouter(h *Handler, allowedOrigins ...string) *chi.Mux {
	r := chi.NewRouter()

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.Register)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetUser)
				r.Get("/credits/balance", h.GetBalance)
				r.Get("/credits/history", h.GetCreditHistory)
				r.Get("/referral", h.GetReferralStats)
				r.Post("/calculations", h.Calculate)
				r.Get("/calculations", h.ListCalculations)
				r.Post("/payments/confirm", h.ConfirmPayment)
			})
		})

		r.Post("/payments/webhook", h.PaymentWebhook)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/rates", h.UpsertRates)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
