// Package server exposes the bridge over HTTP: session and request
// endpoints, response readers, and lifecycle control. Handlers stay
// thin; all decisions about sessions, execution, and rendering live
// in the dispatch layer.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/fetchbridge/internal/config"
	"github.com/xkilldash9x/fetchbridge/internal/dispatch"
	"github.com/xkilldash9x/fetchbridge/internal/engine"
)

// SessionOpener builds a live session from a parsed config. Injected
// so tests can run the full HTTP surface without real sockets.
type SessionOpener func(cfg engine.SessionConfig) (*engine.Session, error)

// Server hosts the bridge API. Shutdown can arrive three ways: the
// parent context is canceled, the process receives a signal, or a
// client posts to /shutdown. All three converge on the same drain.
type Server struct {
	cfg        config.ServerConfig
	dispatcher *dispatch.Dispatcher
	opener     SessionOpener
	logger     *zap.Logger

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	armed        atomic.Bool
}

func New(cfg config.ServerConfig, dispatcher *dispatch.Dispatcher, opener SessionOpener, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		opener:     opener,
		logger:     logger.Named("server"),
		shutdownCh: make(chan struct{}),
	}
}

// Handler builds the router. Exposed separately from Run so tests can
// drive the full surface through httptest.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	requestTimeout := s.cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 120 * time.Second
	}
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", s.handleHealth)
	r.Post("/shutdown", s.handleShutdown)

	r.Post("/sessions", s.handleCreateSession)
	r.Delete("/sessions/{id}", s.handleDeleteSession)

	r.Post("/requests", s.handleRequest)

	r.Route("/responses/{id}", func(r chi.Router) {
		r.Get("/text", s.handleResponseText)
		r.Get("/json", s.handleResponseJSON)
		r.Get("/content", s.handleResponseContent)
		r.Delete("/", s.handleDeleteResponse)
	})

	return r
}

// Run serves until the context is canceled or a shutdown is requested
// through the API, then drains every live handle before returning.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.armed.Store(true)
	defer s.armed.Store(false)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.Info("Bridge listening.", zap.String("addr", s.cfg.Addr()))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.dispatcher.Drain()
			return err
		}
	case <-ctx.Done():
		s.logger.Info("Context canceled, shutting down.")
	case <-s.shutdownCh:
		s.logger.Info("Shutdown requested through the API.")
	}

	shutdownTimeout := s.cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error.", zap.Error(err))
	}

	// Responses first so no body outlives its session transport.
	s.dispatcher.Drain()
	s.logger.Info("Bridge stopped.")
	return nil
}

// triggerShutdown requests a graceful stop. Safe to call repeatedly.
func (s *Server) triggerShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}
