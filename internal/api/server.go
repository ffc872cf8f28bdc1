// File: internal/api/server.go
// Description: HTTP backend hosting the scan sessions, team management and
// AI assistance endpoints.

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/codeshield-25/codeshield-web/internal/config"
	"github.com/codeshield-25/codeshield-web/internal/orchestrator"
)

const shutdownTimeout = 30 * time.Second

// Server is the HTTP backend.
type Server struct {
	cfg        config.ServerConfig
	logger     *zap.Logger
	sessions   *orchestrator.Registry
	handlers   *Handlers
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// NewServer wires the handlers. When deps carries no limiter one is built
// from the configured AI rate.
func NewServer(cfg config.ServerConfig, logger *zap.Logger, deps Dependencies) (*Server, error) {
	if deps.Engine == nil || deps.Sessions == nil || deps.Teams == nil {
		return nil, fmt.Errorf("cannot initialize server with nil dependencies")
	}
	if deps.AILimiter == nil && cfg.AIRateLimit > 0 {
		burst := cfg.AIBurst
		if burst < 1 {
			burst = 1
		}
		deps.AILimiter = rate.NewLimiter(rate.Limit(cfg.AIRateLimit), burst)
	}
	logger = logger.Named("api")
	return &Server{
		cfg:      cfg,
		logger:   logger,
		sessions: deps.Sessions,
		handlers: NewHandlers(logger, deps),
		upgrader: newUpgrader(cfg.AllowedOrigins),
	}, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.cfg.AllowedOrigins))

	// The feed is long-lived, so it skips the logger and the timeout.
	r.Get("/ws/v1/sessions/{sessionID}", s.handleSessionFeed())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Logger)
		if s.cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		}
		s.handlers.RegisterRoutes(r)
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully and closes
// every session.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		defer close(idleConnsClosed)
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Closing sessions ends their websocket feeds, which Shutdown does not track.
		s.sessions.CloseAll()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}()

	go s.sessions.RunJanitor(ctx)

	s.logger.Info("HTTP server starting", zap.String("address", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("HTTP server Serve error", zap.Error(err))
		return err
	}

	<-idleConnsClosed
	s.logger.Info("HTTP server stopped.")
	return nil
}
