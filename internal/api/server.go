package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/openbook/internal/assess"
	"github.com/mattjoyce/openbook/internal/auth"
	"github.com/mattjoyce/openbook/internal/book"
	"github.com/mattjoyce/openbook/internal/events"
	"github.com/mattjoyce/openbook/internal/openings"
	"github.com/mattjoyce/openbook/internal/protocol"
	"github.com/mattjoyce/openbook/internal/querylog"
)

//go:generate mockgen -destination=mocks/mock_api.go -package=mocks github.com/mattjoyce/openbook/internal/api OpeningService,QueryHistory

// OpeningService answers book questions.
type OpeningService interface {
	Lookup(ctx context.Context, position, submittedBy string) (*openings.Answer, error)
	Assess(ctx context.Context, position, submittedBy string) (assess.Assessment, error)
	BestMove(ctx context.Context, position, submittedBy string) (protocol.Edge, error)
	Books() []openings.BookView
	SelectBook(ctx context.Context, name string) (book.Book, error)
	Status() book.Status
}

// QueryHistory reads the query log.
type QueryHistory interface {
	Recent(ctx context.Context, limit int) ([]querylog.Entry, error)
	Get(ctx context.Context, id string) (*querylog.Entry, error)
}

// EventSource is the read side of an events hub.
type EventSource interface {
	SnapshotSince(lastID int64) []events.Event
	Subscribe() (<-chan events.Event, func())
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the admin bearer token.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
	// QueryTimeout bounds one lookup. Zero means 30s.
	QueryTimeout time.Duration
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	service   OpeningService
	history   QueryHistory
	events    EventSource
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. history and events may be nil, in
// which case their routes answer 404.
func New(config Config, service OpeningService, history QueryHistory, events EventSource, logger *slog.Logger) *Server {
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = 30 * time.Second
	}
	return &Server{
		config:    config,
		service:   service,
		history:   history,
		events:    events,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // /events streams indefinitely
		IdleTimeout:  60 * time.Second,
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

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes(auth.ScopeQuery)).Post("/query", s.handleQuery)
		r.With(s.requireScopes(auth.ScopeQuery)).Post("/assess", s.handleAssess)
		r.With(s.requireScopes(auth.ScopeQuery)).Post("/bestmove", s.handleBestMove)
		r.With(s.requireScopes(auth.ScopeQuery)).Get("/queries", s.handleListQueries)
		r.With(s.requireScopes(auth.ScopeQuery)).Get("/queries/{queryID}", s.handleGetQuery)
		r.With(s.requireScopes(auth.ScopeBooksRO)).Get("/books", s.handleListBooks)
		r.With(s.requireScopes(auth.ScopeBooksRO)).Get("/status", s.handleStatus)
		r.With(s.requireScopes(auth.ScopeBooksRW)).Put("/books/current", s.handleSelectBook)
		r.With(s.requireScopes(auth.ScopeEventsRO)).Get("/events", s.handleEvents)
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
