package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"maturity-hq/steward/pkg/config"
)

// Server runs the Steward HTTP API.
type Server struct {
	config     *config.ServerConfig
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger

	mu        sync.RWMutex
	isRunning bool
	addr      net.Addr
	ready     chan struct{}
}

// New creates a server serving handler, usually built by NewRouter.
func New(cfg *config.ServerConfig, handler http.Handler) *Server {
	return &Server{
		config:  cfg,
		handler: handler,
		logger:  slog.Default().With("component", "server"),
		ready:   make(chan struct{}),
	}
}

// Start listens on the configured address and serves until ctx is
// canceled, then shuts down gracefully. It returns nil after a clean
// shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return errors.New("server is already running")
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.httpServer = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.isRunning = true
	s.addr = ln.Addr()
	close(s.ready)
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.WithoutCancel(ctx))
	case err, ok := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		if !ok {
			return nil
		}
		return err
	}
}

// Shutdown stops accepting connections and waits for in-flight requests
// up to the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Info("API server stopped")
	return nil
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
