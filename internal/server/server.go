// Package server provides the HTTP server and routing for the vault daemon.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/royaltyfi/vaultd/internal/auth"
	"github.com/royaltyfi/vaultd/internal/database"
	"github.com/royaltyfi/vaultd/internal/di"
	allocationhandlers "github.com/royaltyfi/vaultd/internal/modules/allocation/handlers"
	analyticshandlers "github.com/royaltyfi/vaultd/internal/modules/analytics/handlers"
	ledgerhandlers "github.com/royaltyfi/vaultd/internal/modules/ledger/handlers"
	registryhandlers "github.com/royaltyfi/vaultd/internal/modules/registry/handlers"
	vaulthandlers "github.com/royaltyfi/vaultd/internal/modules/vault/handlers"
	"github.com/royaltyfi/vaultd/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Container *di.Container
	Scheduler *scheduler.Scheduler
	Port      int
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	container      *di.Container
	systemHandlers *SystemHandlers
	eventsStream   *EventsStreamHandler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	c := cfg.Container

	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		container: c,
		systemHandlers: NewSystemHandlers(
			cfg.Log,
			c.Config.DataDir,
			[]*database.DB{c.VaultDB, c.LedgerDB},
			cfg.Scheduler,
		),
		eventsStream: NewEventsStreamHandler(c.Bus, cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// RegisterJob makes a background job manually triggerable via the API.
func (s *Server) RegisterJob(job scheduler.Job) {
	s.systemHandlers.RegisterJob(job)
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", auth.PrincipalHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Use(auth.PrincipalMiddleware)

	if devMode {
		s.log.Info().Msg("Running in dev mode")
	}
}

// loggingMiddleware logs each request with method, path, status and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request")
	})
}

// setupRoutes registers all routes
func (s *Server) setupRoutes() {
	c := s.container
	log := s.log

	s.router.Get("/health", s.systemHandlers.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		registryhandlers.NewHandler(c.RegistryService, log).RegisterRoutes(r)
		ledgerhandlers.NewHandler(c.LedgerService, log).RegisterRoutes(r)
		allocationhandlers.NewHandler(c.AllocationService, log).RegisterRoutes(r)
		vaulthandlers.NewHandler(c.VaultService, log).RegisterRoutes(r)
		analyticshandlers.NewHandler(c.AnalyticsService, log).RegisterRoutes(r)

		r.Route("/auth", func(r chi.Router) {
			h := NewAuthHandlers(c.Gate, log)
			r.Get("/roles", h.HandleListRoles)
			r.Get("/roles/{principal}", h.HandleRolesOf)
			r.Post("/roles", h.HandleGrant)
			r.Delete("/roles/{principal}/{role}", h.HandleRevoke)
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleStatus)
			r.Post("/jobs/{name}/run", s.systemHandlers.HandleRunJob)
		})

		r.Get("/events/stream", s.eventsStream.ServeHTTP)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}
