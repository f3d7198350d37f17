package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	apihandler "github.com/newthinker/nextsignal/internal/api/handler/api"
	"github.com/newthinker/nextsignal/internal/api/middleware"
	"github.com/newthinker/nextsignal/internal/api/response"
	"github.com/newthinker/nextsignal/internal/app"
	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/generator"
	"github.com/newthinker/nextsignal/internal/metrics"
	"github.com/newthinker/nextsignal/internal/session"
	"github.com/newthinker/nextsignal/internal/storage/archive"
	"github.com/newthinker/nextsignal/internal/storage/identity"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server for nextsignal
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	router     chi.Router
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	MetricsPath string // empty disables /metrics
}

// Dependencies holds the services the routes are served from.
type Dependencies struct {
	App        *app.App
	Generator  *generator.Generator
	Sessions   *session.Manager
	Identities *identity.Service
	Archive    *archive.Snapshots // optional
	Metrics    *metrics.Registry  // optional
	UserCount  int64
}

func (d Dependencies) validate() error {
	switch {
	case d.App == nil:
		return errors.New("app required")
	case d.Generator == nil:
		return errors.New("generator required")
	case d.Sessions == nil:
		return errors.New("session manager required")
	case d.Identities == nil:
		return errors.New("identity service required")
	}
	return nil
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		router: r,
	}

	s.setupRoutes(cfg, deps)
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	r := s.router

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(metrics.LoggingMiddleware(s.logger))
	if deps.Metrics != nil {
		r.Use(metrics.HTTPMiddleware(deps.Metrics))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, core.ErrRouteNotFound)
	})

	r.Get("/api/health", s.handleHealth)
	if deps.Metrics != nil && cfg.MetricsPath != "" {
		r.Handle(cfg.MetricsPath, promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	authHandler := apihandler.NewAuthHandler(deps.Sessions, deps.Identities)
	identityHandler := apihandler.NewIdentityHandler(deps.Identities)
	signalsHandler := apihandler.NewSignalsHandler(deps.App, deps.Generator)
	generateHandler := apihandler.NewGenerateHandler(deps.Generator)
	statsHandler := apihandler.NewStatsHandler(deps.UserCount, deps.App, deps.Identities)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", statsHandler.Get)
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.SessionAuth(deps.Sessions))

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/session", authHandler.Session)

			r.Get("/me/user-id", identityHandler.Get)
			r.Put("/me/user-id", identityHandler.Claim)

			r.Get("/signals", signalsHandler.List)
			r.Post("/signals/refresh", signalsHandler.Refresh)
			r.Get("/signals/next", signalsHandler.Next)

			if deps.Archive != nil {
				archiveHandler := apihandler.NewArchiveHandler(deps.Archive)
				r.Get("/signals/archive", archiveHandler.List)
				r.Get("/signals/archive/latest", archiveHandler.Latest)
				r.Get("/signals/archive/{id}", archiveHandler.Get)
			}

			r.Post("/generate", generateHandler.Create)
			r.Get("/generate/{id}", generateHandler.Get)
		})
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
