package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rubyenvd/rubyenvd/internal/auth"
	"github.com/rubyenvd/rubyenvd/internal/rubyenv"
)

// Directory is the set of workspace registry operations the API exposes.
type Directory interface {
	EnsureContext(ctx context.Context, ws rubyenv.WorkspaceContext) *rubyenv.Resolver
	RemoveContext(key string) bool
	Resolver(key string) (*rubyenv.Resolver, bool)
	Contexts() []rubyenv.WorkspaceContext
}

// ReloadFunc re-reads configuration and applies it to the running service.
type ReloadFunc func(ctx context.Context) error

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is a single bearer token with full access.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	directory Directory
	bus       *rubyenv.Bus
	reload    ReloadFunc
	verifier  *auth.Verifier
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, directory Directory, bus *rubyenv.Bus, reload ReloadFunc, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		directory: directory,
		bus:       bus,
		reload:    reload,
		verifier:  auth.NewVerifier(config.APIKey, config.Tokens),
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /v1/events streams indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	// Protected API.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes(auth.ScopeWorkspacesRO)).Get("/v1/workspaces", s.handleListWorkspaces)
		r.With(s.requireScopes(auth.ScopeWorkspacesRW)).Post("/v1/workspaces", s.handleCreateWorkspace)
		r.With(s.requireScopes(auth.ScopeWorkspacesRW)).Delete("/v1/workspaces/{key}", s.handleDeleteWorkspace)
		r.With(s.requireScopes(auth.ScopeWorkspacesRO)).Get("/v1/workspaces/{key}/ruby", s.handleGetRuby)
		r.With(s.requireScopes(auth.ScopeWorkspacesRW)).Post("/v1/workspaces/{key}/resolve", s.handleResolve)
		r.With(s.requireScopes(auth.ScopeWorkspacesRW)).Put("/v1/workspaces/{key}/ruby-path", s.handleSelectRubyPath)
		r.With(s.requireScopes(auth.ScopeWorkspacesRW)).Post("/v1/reload", s.handleReload)
		r.With(s.requireScopes(auth.ScopeEventsRO)).Get("/v1/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authMiddleware resolves the bearer token to a principal.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearerToken(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		principal, ok := s.verifier.Verify(token)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// requireScopes rejects principals holding none of the listed scopes.
// The admin scope "*" always passes.
func (s *Server) requireScopes(scopes ...auth.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok || !principal.HasAny(scopes...) {
				s.writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
