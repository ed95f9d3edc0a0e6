package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/taskgate/internal/events"
	"github.com/mattjoyce/taskgate/internal/guard"
	"github.com/mattjoyce/taskgate/internal/task"
)

// DefaultMaxBodyBytes caps a /run request body.
const DefaultMaxBodyBytes = 64 << 10

// Executor runs free task text to a single outcome.
type Executor interface {
	Execute(ctx context.Context, text string) task.Outcome
}

// PathGuard confines /read and /filter-csv to the sandbox.
type PathGuard interface {
	ValidatePath(p string) guard.Verdict
	Root() string
}

// KindRegistry reports how many task kinds are served.
type KindRegistry interface {
	Len() int
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey enables bearer auth on every route except /healthz and
	// /openapi.json. Empty disables auth.
	APIKey       string
	MaxBodyBytes int64
	// WriteTimeout must exceed the supervisor deadline.
	WriteTimeout time.Duration
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	exec      Executor
	guard     PathGuard
	registry  KindRegistry
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

func New(config Config, exec Executor, g PathGuard, registry KindRegistry, hub *events.Hub, logger *slog.Logger) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 30 * time.Second
	}
	if hub == nil {
		hub = events.NewHub(events.DefaultHistory)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:    config,
		exec:      exec,
		guard:     g,
		registry:  registry,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler { return s.setupRoutes() }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "auth", s.config.APIKey != "")

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
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/run", s.handleRun)
		r.Get("/read", s.handleRead)
		r.Get("/filter-csv", s.handleFilterCSV)
		r.Get("/events", s.handleEvents)
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
