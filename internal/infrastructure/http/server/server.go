package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "3tcapital/tokenbroker/internal/adapters/http/audit"
	sessionhttp "3tcapital/tokenbroker/internal/adapters/http/session"
	tokenhttp "3tcapital/tokenbroker/internal/adapters/http/token"
	"3tcapital/tokenbroker/internal/infrastructure/config"
	"3tcapital/tokenbroker/internal/infrastructure/http/middleware"
)

// Server owns the HTTP listener and its routes.
type Server struct {
	log        *slog.Logger
	httpServer *http.Server
	auth       *middleware.JWTAuthenticator
	shutdown   config.HTTPSettings
}

// Options wires handlers into the router. Only Logger and HealthHandler are
// required; a nil handler leaves its routes unregistered.
type Options struct {
	Config         config.AppConfig
	Logger         *slog.Logger
	HealthHandler  http.Handler
	MetricsHandler http.Handler
	TokenHandler   *tokenhttp.Handler
	SessionHandler *sessionhttp.Handler
	AuditHandler   *audithttp.Handler
}

// New builds the router and the underlying http.Server.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.HealthHandler == nil {
		return nil, errors.New("health handler is required")
	}

	auth, err := middleware.NewJWTAuthenticator(opts.Config.Auth, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("create authenticator: %w", err)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(opts.Logger))
	r.Use(chimw.Recoverer)

	r.Method(http.MethodGet, "/health", opts.HealthHandler)
	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware)

		if h := opts.TokenHandler; h != nil {
			r.With(middleware.RequestTimeout(opts.Config.HTTP.TokenWait)).Get("/token", h.GetToken)
			r.Get("/token/stream", h.Stream)
		}
		if h := opts.SessionHandler; h != nil {
			r.Get("/session", h.Get)
			r.Post("/session", h.Login)
			r.Delete("/session", h.Logout)
		}
		if h := opts.AuditHandler; h != nil {
			r.Get("/audit/{attempt_id}", h.GetAttempt)
		}
	})

	srv := &http.Server{
		Addr:         opts.Config.HTTP.Address(),
		Handler:      r,
		ReadTimeout:  opts.Config.HTTP.ReadTimeout,
		WriteTimeout: opts.Config.HTTP.WriteTimeout,
		IdleTimeout:  opts.Config.HTTP.IdleTimeout,
	}

	return &Server{log: opts.Logger, httpServer: srv, auth: auth, shutdown: opts.Config.HTTP}, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully within the
// configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server started", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops background JWKS refreshers.
func (s *Server) Close() {
	s.auth.Close()
}
