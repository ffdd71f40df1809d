package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wp_syncer/internal/config"
	"wp_syncer/internal/domain"
	"wp_syncer/internal/scheduler"
	"wp_syncer/internal/status"
)

// Scheduler is the run control used by the trigger and status routes.
type Scheduler interface {
	Trigger(ctx context.Context) (time.Time, error)
	InProgress() bool
	Status() scheduler.Status
}

// Syncer serves the single-item and search routes.
type Syncer interface {
	SyncOne(ctx context.Context, sourceID int64) (*domain.UpsertResult, error)
	Search(ctx context.Context, query string, page, pageSize int) ([]domain.SourcePost, error)
}

type StatusReader interface {
	Snapshot() status.Snapshot
}

type PostCounter interface {
	Count(ctx context.Context) (int64, error)
}

type Deps struct {
	Scheduler Scheduler
	Syncer    Syncer
	Status    StatusReader
	Posts     PostCounter
}

// Server is the admin and status surface of the syncer.
type Server struct {
	deps       Deps
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
}

func NewServer(cfg config.HTTPConfig, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		deps:   deps,
		logger: logger.With("component", "http"),
	}

	window := cfg.TriggerWindow
	if window <= 0 {
		window = time.Minute
	}
	limit := cfg.TriggerRateLimit
	if limit <= 0 {
		limit = 10
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(withLogging(s.logger))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/sync/status", s.handleSyncStatus)
	r.Get("/posts", s.handleSearchPosts)

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(limit, window))
		r.Post("/sync", s.handleTriggerSync)
		r.Post("/sync/{sourceId}", s.handleSyncOne)
	})

	s.router = r
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks until the server is shut down or fails.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func withLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
