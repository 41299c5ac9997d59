package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server HTTP listener of the follow-up API
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second, // xlsx export
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks until the listener fails or Stop is called; a clean Stop returns nil
func (s *Server) Start() error {
	s.logger.Info("Starting wisefido-followup HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping wisefido-followup HTTP server")
	return s.httpServer.Shutdown(ctx)
}
