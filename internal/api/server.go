package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fleetops/kestrel/internal/domain"
	"github.com/fleetops/kestrel/internal/recovery"
	"github.com/fleetops/kestrel/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, analysis domain.AnalysisConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, analyzer *recovery.Analyzer, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, analyzer, analysis, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no fleet required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (fleet required)
	router.Route("/", func(r chi.Router) {
		r.Use(FleetMiddleware)

		// Trip ingestion and retrieval
		r.Post("/trips", handler.IngestTrip)
		r.Get("/trips/{id}", handler.GetTrip)

		// Detection retrieval and lifecycle
		r.Get("/detections", handler.ListDetections)
		r.Get("/detections/summary", handler.DetectionSummary)
		r.Get("/detections/{id}", handler.GetDetection)
		r.Patch("/detections/{id}/status", handler.UpdateDetectionStatus)

		// Data recovery analysis
		r.Get("/vehicles/{id}/recovery", handler.AnalyzeVehicleRecovery)

		// Rule management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
