// Package server provides the HTTP server for the intent API.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rafteles16/CRMPSICO/internal/config"
	apierrors "github.com/rafteles16/CRMPSICO/internal/errors"
	"github.com/rafteles16/CRMPSICO/internal/handler"
	"github.com/rafteles16/CRMPSICO/internal/health"
	"github.com/rafteles16/CRMPSICO/internal/middleware"
)

// Server represents the HTTP server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	handlers     *handler.Handlers
	healthCheck  *health.HealthChecker
	errorHandler *apierrors.Handler
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer creates a new HTTP server.
func NewServer(cfg *config.Config, handlers *handler.Handlers, healthCheck *health.HealthChecker, errorHandler *apierrors.Handler, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		router:       router,
		httpServer:   httpServer,
		handlers:     handlers,
		healthCheck:  healthCheck,
		errorHandler: errorHandler,
		logger:       logger,
		cfg:          cfg,
	}
}

// SetupRoutes configures all HTTP routes.
func (s *Server) SetupRoutes() {
	// Setup middleware chain
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
	}

	// Add rate limiter if enabled
	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	// Apply middleware to router
	chain := middleware.Chain(middlewareChain...)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	// Health check endpoints
	s.router.HandleFunc("/health/live", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/health/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	// API v1 routes
	v1 := s.router.PathPrefix("/v1").Subrouter()

	// Session intents
	v1.HandleFunc("/session/login", s.handlers.Login).Methods(http.MethodPost)
	v1.HandleFunc("/session/logout", s.handlers.Logout).Methods(http.MethodPost)

	// Reconciled view state
	v1.HandleFunc("/state", s.handlers.State).Methods(http.MethodGet)
	v1.HandleFunc("/clients", s.handlers.ListClients).Methods(http.MethodGet)
	v1.HandleFunc("/consultations", s.handlers.ListConsultations).Methods(http.MethodGet)
	v1.HandleFunc("/leads", s.handlers.ListLeads).Methods(http.MethodGet)
	v1.HandleFunc("/clients/{client_id}/consultations", s.handlers.ClientConsultations).Methods(http.MethodGet)

	// Client detail intents
	v1.HandleFunc("/clients/selection", s.handlers.ClearSelection).Methods(http.MethodDelete)
	v1.HandleFunc("/clients/{client_id}/select", s.handlers.SelectClient).Methods(http.MethodPost)

	// Lead intents
	v1.HandleFunc("/leads/{lead_id}/accept", s.handlers.AcceptLead).Methods(http.MethodPost)
	v1.HandleFunc("/leads/{lead_id}", s.handlers.DeleteLead).Methods(http.MethodDelete)

	// Not found handler
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.ErrorCodeInvalidRequest, "endpoint not found", requestID)
	})

	// Method not allowed handler
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, apierrors.ErrorCodeInvalidRequest, "method not allowed", requestID)
	})
}

// Router returns the configured router, for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start begins serving; it blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("Starting intent API server", zap.String("address", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
