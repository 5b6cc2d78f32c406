package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/good-yellow-bee/tuskguard/internal/api/alerts"
	"github.com/good-yellow-bee/tuskguard/internal/api/auth"
	"github.com/good-yellow-bee/tuskguard/internal/api/checks"
	"github.com/good-yellow-bee/tuskguard/internal/api/geofences"
	"github.com/good-yellow-bee/tuskguard/internal/api/gps"
	"github.com/good-yellow-bee/tuskguard/internal/api/middleware"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	var jwtService *auth.JWTService
	if len(s.config.JWTSecret) > 0 {
		jwtService = auth.NewJWTService(s.config.JWTSecret, s.config.TokenTTL)
	}

	// Global middleware
	r.Use(middleware.RequestLogger(s.logger, s.config.Verbose))
	r.Use(middleware.PrometheusMiddleware)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer(s.logger))

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	gpsHandler := gps.NewHandler(s.deps.Ingester, s.logger)
	geofenceHandler := geofences.NewHandler(s.deps.Geofences, s.logger)
	alertHandler := alerts.NewHandler(s.deps.Store, s.deps.Raiser, s.deps.Cooldowns, s.logger)
	checkHandler := checks.NewHandler(s.deps.Checker, s.logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(s.config.RequestTimeout))

		// Collar ingestion is public and rate limited per client IP.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(s.ipLimiter))
			r.Post("/gps", gpsHandler.Ingest)
			r.Post("/gps/{provider}", gpsHandler.Ingest)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(jwtService, s.logger))

			r.Route("/geofences", func(r chi.Router) {
				r.Get("/", geofenceHandler.List)
				r.Get("/{id}", geofenceHandler.Get)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireWrite)
					r.Post("/", geofenceHandler.Create)
					r.Put("/{id}", geofenceHandler.Update)
					r.Delete("/{id}", geofenceHandler.Delete)
				})
			})

			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", alertHandler.List)
				r.Get("/cooldown", alertHandler.Cooldown)
				r.Get("/{id}", alertHandler.Get)
				r.With(middleware.RequireWrite).Post("/", alertHandler.CreateManual)
			})

			r.With(middleware.RequireWrite).Post("/checks", checkHandler.Run)
		})
	})

	// Health checks (public, no rate limit)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	return r
}
