// Package server is the HTTP surface of ingest mode: health, session
// status, live books, sports games, Prometheus metrics and a websocket book
// stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predexchange/internal/server/handler"
	"github.com/alanyoungcy/predexchange/internal/server/middleware"
	"github.com/alanyoungcy/predexchange/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// Handlers aggregates the route handlers. Nil handlers leave their routes
// unregistered.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Books   *handler.BooksHandler
	Sports  *handler.SportsHandler
	Metrics http.Handler
}

// Server is the API server.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// NewServer registers the routes and wraps them in recovery, logging and
// CORS middleware.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}
	if handlers.Books != nil {
		mux.HandleFunc("GET /api/books", handlers.Books.ListBooks)
		mux.HandleFunc("GET /api/books/{market}/{asset}", handlers.Books.GetBook)
		mux.HandleFunc("GET /api/mids/{market}/{asset}", handlers.Books.GetMid)
	}
	if handlers.Sports != nil {
		mux.HandleFunc("GET /api/sports", handlers.Sports.ListGames)
	}
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws/books", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Recover(logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		shutdownTimeout: timeout,
		logger:          logger,
	}
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}
