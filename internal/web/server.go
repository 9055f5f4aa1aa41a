package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jsykora/bioindex/internal/config"
	"github.com/jsykora/bioindex/internal/ingest"
	"github.com/jsykora/bioindex/internal/match"
	"github.com/jsykora/bioindex/internal/store"
	"github.com/jsykora/bioindex/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config         *config.Config
	router         *chi.Mux
	httpServer     *http.Server
	store          store.SignatureWriter
	orchestrator   *match.Orchestrator
	extractor      ingest.Extractor
	sessionManager *middleware.SessionManager
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, s store.SignatureWriter, o *match.Orchestrator, e ingest.Extractor, sessionRepo middleware.SessionRepository) *Server {
	r := chi.NewRouter()

	// Create session manager with optional persistence
	sessionManager := middleware.NewSessionManager(cfg.Server.SessionSecret, cfg.Server.SessionTTL, sessionRepo)

	srv := &Server{
		config:         cfg,
		router:         r,
		store:          s,
		orchestrator:   o,
		extractor:      e,
		sessionManager: sessionManager,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	// Set up routes
	srv.setupRoutes(sessionManager)

	// Create HTTP server
	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return srv
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")

	// Stop the session sweep goroutine
	if s.sessionManager != nil {
		s.sessionManager.Stop()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
