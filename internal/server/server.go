package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/openmined/docsync/internal/config"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	config *config.ServerConfig
	svc    *Services
	server *http.Server
}

func New(cfg *config.ServerConfig, svc *Services) (*Server, error) {
	handler, err := SetupRoutes(cfg, svc)
	if err != nil {
		return nil, err
	}

	return &Server{
		config: cfg,
		svc:    svc,
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled, then shuts the server and the background syncs
// down.
func (s *Server) Start(ctx context.Context) error {
	slog.Info("docsync server start", "addr", s.config.Addr)
	defer slog.Info("docsync server stop")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server start error", "error", err)
			errCh <- err
			return
		}
		slog.Info("http server stopped")
	}()

	select {
	case err := <-errCh:
		s.svc.Dispatcher.Shutdown(context.Background())
		return err
	case <-ctx.Done():
	}

	slog.Info("docsync shutdown signal")
	if err := s.Stop(context.WithoutCancel(ctx)); err != nil {
		slog.Error("docsync shutdown error", "error", err)
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := s.svc.Dispatcher.Shutdown(shutdownCtx); err != nil {
		slog.Warn("background syncs still running at shutdown", "error", err)
		return err
	}
	return nil
}
