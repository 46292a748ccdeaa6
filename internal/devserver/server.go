// Package devserver runs a local booking API exposing the auth endpoints the
// client consumes, for development and end-to-end tests.
package devserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"ferry-booking-client/internal/config"
	"ferry-booking-client/internal/logging"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Server represents the development HTTP API server
type Server struct {
	cfg        config.DevServerConfig
	logger     *logrus.Entry
	router     *mux.Router
	httpServer *http.Server
	sessions   *sessionStore
	tokens     *tokenIssuer
	hashCost   int
}

// Option customises a Server
type Option func(*Server)

// WithPasswordCost sets the bcrypt cost used for signup
func WithPasswordCost(cost int) Option {
	return func(s *Server) {
		s.hashCost = cost
	}
}

// NewServer creates a new development server instance
func NewServer(cfg config.DevServerConfig, logger *logrus.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.SigningKey == "" {
		return nil, fmt.Errorf("signing key is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("token lifetimes must be positive")
	}

	sessions := newSessionStore()
	s := &Server{
		cfg:      cfg,
		logger:   logging.NewServiceLogger(logger, "devserver"),
		router:   mux.NewRouter(),
		sessions: sessions,
		tokens: &tokenIssuer{
			key:        []byte(cfg.SigningKey),
			accessTTL:  time.Duration(cfg.AccessTTL) * time.Second,
			refreshTTL: time.Duration(cfg.RefreshTTL) * time.Second,
			sessions:   sessions,
		},
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Handler returns the routed handler, for mounting in tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// ExpireAccessTokens invalidates every access token issued so far. Refresh
// tokens stay valid, so clients recover through a refresh.
func (s *Server) ExpireAccessTokens() {
	epoch := s.sessions.bumpEpoch()
	s.logger.WithField("epoch", epoch).Info("Access tokens expired")
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting development API server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Development API server shutting down")
		return s.Shutdown()
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Error("Error during server shutdown")
		return err
	}

	s.logger.Info("Development API server shutdown complete")
	return nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
}

func (s *Server) setupRoutes() {
	authRoutes := s.router.PathPrefix("/auth").Subrouter()
	authRoutes.HandleFunc("/guest", s.handleGuest).Methods("POST")
	authRoutes.HandleFunc("/signup", s.handleSignup).Methods("POST")
	authRoutes.HandleFunc("/login", s.handleLogin).Methods("POST")
	authRoutes.HandleFunc("/refresh", s.handleRefresh).Methods("POST")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(s.authenticationMiddleware)
	protected.HandleFunc("/me", s.handleMe).Methods("GET")
}
