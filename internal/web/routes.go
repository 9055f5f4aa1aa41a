package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/jsykora/bioindex/internal/web/handlers"
	"github.com/jsykora/bioindex/internal/web/middleware"
)

func (s *Server) setupRoutes(sessionManager *middleware.SessionManager) {
	// Create handlers
	authHandler := handlers.NewAuthHandler(s.config, sessionManager)
	registerHandler := handlers.NewRegisterHandler(s.store, s.orchestrator, s.extractor)
	searchHandler := handlers.NewSearchHandler(s.orchestrator, s.extractor, s.config.Policy, s.config.Search.Timeout)
	identitiesHandler := handlers.NewIdentitiesHandler(s.store, s.orchestrator)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Auth routes
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)

		// All other routes require authentication
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(sessionManager))

			// Enrollment
			r.Post("/identities", registerHandler.Register)

			// Lookup
			r.Post("/search", searchHandler.Search)

			// Identity records
			r.Get("/identities/{id}", identitiesHandler.Get)
			r.Delete("/identities/{id}", identitiesHandler.Delete)
			r.Get("/identities/{id}/signature", identitiesHandler.Signature)
		})
	})
}
