// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"presencelog/internal/api"
	"presencelog/internal/cache"
	"presencelog/internal/config"
	"presencelog/internal/identity"
	"presencelog/internal/logutil"
	"presencelog/internal/store"
)

var (
	ErrMissingDep     = errors.New("missing required dependency")
	ErrInvalidTLSMode = errors.New("invalid tls mode")
)

// Deps holds all server dependencies.
type Deps struct {
	// Required: identity and auth
	PartyRepo   identity.PartyRepo
	SessionRepo identity.SessionRepo
	UserAuth    *identity.UserAuth

	// Required: persistence
	Store store.PresenceStore

	// Required: latest-presence view and rate limit counters
	Cache cache.Cache
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg          *config.Config
	httpServer   *http.Server
	logger       *slog.Logger
	deps         *Deps
	authHandler  *api.AuthHandler
	queryHandler *api.QueryHandler
}

// New creates a new Server with the given configuration.
// Returns an error if required dependencies are missing.
func New(cfg *config.Config, logger *slog.Logger, deps *Deps) (*Server, error) {
	if err := validateDeps(deps); err != nil {
		return nil, err
	}

	sessionTTL := time.Duration(cfg.Server.SessionTTLMinutes) * time.Minute

	s := &Server{
		cfg:          cfg,
		logger:       logutil.NoopIfNil(logger),
		deps:         deps,
		authHandler:  api.NewAuthHandler(deps.PartyRepo, deps.SessionRepo, deps.UserAuth, sessionTTL),
		queryHandler: api.NewQueryHandler(deps.Store, deps.Cache),
	}

	router := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the configured router. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		"addr", s.cfg.ListenAddr,
		"external_base_path", s.cfg.ExternalBasePath,
		"tls_mode", s.cfg.TLS.Mode,
	)

	switch s.cfg.TLS.Mode {
	case "off":
		return s.httpServer.ListenAndServe()
	case "static":
		return s.httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidTLSMode, s.cfg.TLS.Mode)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// validateDeps checks that all required dependencies are provided.
func validateDeps(deps *Deps) error {
	if deps == nil {
		return errors.New("deps is nil")
	}
	if deps.PartyRepo == nil {
		return fmt.Errorf("%w: PartyRepo", ErrMissingDep)
	}
	if deps.SessionRepo == nil {
		return fmt.Errorf("%w: SessionRepo", ErrMissingDep)
	}
	if deps.UserAuth == nil {
		return fmt.Errorf("%w: UserAuth", ErrMissingDep)
	}
	if deps.Store == nil {
		return fmt.Errorf("%w: Store", ErrMissingDep)
	}
	if deps.Cache == nil {
		return fmt.Errorf("%w: Cache", ErrMissingDep)
	}
	return nil
}
