package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zeina-health/companion/internal/middleware"
	"github.com/zeina-health/companion/pkg/logger"
)

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Health       *HealthHandler
	Assistant    *AssistantHandler
	Appointments *AppointmentHandler
	Catalog      *CatalogHandler
	Profile      *ProfileHandler
}

// RouterConfig carries the settings the route tree needs.
type RouterConfig struct {
	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter builds the HTTP route tree.
func NewRouter(h Handlers, cfg RouterConfig, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/assistant/sessions", func(r chi.Router) {
			r.Post("/", h.Assistant.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", h.Assistant.Delete)
				r.Post("/messages", h.Assistant.SendMessage)
				r.Put("/language", h.Assistant.SetLanguage)
				r.Put("/profile", h.Assistant.SetProfile)
			})
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Get("/", h.Appointments.List)
			r.Post("/", h.Appointments.Book)
			r.Route("/{id}", func(r chi.Router) {
				r.Put("/status", h.Appointments.UpdateStatus)
				r.Put("/schedule", h.Appointments.Reschedule)
				r.Get("/events", h.Appointments.Events)
			})
		})

		r.Get("/experts", h.Catalog.Experts)
		r.Get("/services", h.Catalog.Services)
		r.Post("/reviews", h.Catalog.AddReview)
		r.Get("/reviews/{itemId}", h.Catalog.Reviews)
		r.Get("/ratings/{itemId}", h.Catalog.Rating)

		r.Get("/me", h.Profile.Get)
		r.Put("/me", h.Profile.Update)
	})

	return r
}
