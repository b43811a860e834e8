package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/survey-collector/internal/config"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, cfg config.ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// CORS - the collector is consumed by a browser frontend on another
	// origin, so the allowed origins come from configuration.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", h.Health)

	// Survey routes
	r.Route("/users/{username}/surveys/{surveyName}", func(r chi.Router) {
		r.Get("/", h.GetSurvey)
		r.Post("/", h.CreateSurvey)
		r.Put("/", h.UpdateSurvey)
		r.Delete("/", h.DeleteSurvey)

		r.Post("/submissions", h.Submit)
		r.Delete("/submissions", h.Reset)

		r.Get("/verification/{token}", h.Verify)
		r.Get("/results", h.Results)
	})

	return r
}
