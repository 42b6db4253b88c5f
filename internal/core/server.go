// Package core provides the API chassis for the stock notification service.
// It creates a chi router and enforces cross-cutting concerns -- request
// identification, logging, panic recovery, and error handling -- before
// requests reach domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stocknotify/internal/config"
)

// Server encapsulates the router and cross-cutting dependencies for the API,
// allowing easy injection during testing.
type Server struct {
	Config *config.Config
	Logger *slog.Logger

	router *chi.Mux
}

// NewServer initializes the router with the standard middleware chain. The
// caller mounts routes after construction.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}

	// Recoverer is outermost so every panic is caught.
	s.router.Use(s.Recoverer)
	s.router.Use(RequestID)
	s.router.Use(RequestLogger(logger, []string{"Authorization", "X-CleverTap-Passcode"}))

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, r, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": cfg.Service,
		})
	})

	return s, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
