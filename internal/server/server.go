package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yigit/chatsphere/internal/bootstrap"
	"github.com/yigit/chatsphere/internal/config"
	"github.com/yigit/chatsphere/internal/pkg/helpers"
	"github.com/yigit/chatsphere/internal/pkg/telemetry"
)

// Server holds the state for the HTTP server.
type Server struct {
	config   *config.Config
	router   *gin.Engine
	infra    *bootstrap.Infrastructure
	deps     *bootstrap.Dependencies
	tracing  telemetry.ShutdownFunc
	logger   zerolog.Logger
	http     *http.Server
	workers  sync.WaitGroup
	stopPush context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// NewServer creates and initializes a new server instance by calling bootstrap functions.
func NewServer(ctx context.Context, configPath string) (*Server, error) {
	cfg, lgr, err := bootstrap.LoadConfigAndSetupLogger(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config or setup logger: %w", err)
	}

	tracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Server.Mode,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup tracing: %w", err)
	}

	infra, err := bootstrap.SetupInfrastructure(ctx, cfg, lgr)
	if err != nil {
		_ = tracing(ctx)
		return nil, fmt.Errorf("failed to setup infrastructure: %w", err)
	}

	deps, err := bootstrap.BuildDependencies(cfg, infra, lgr)
	if err != nil {
		_ = infra.Close()
		_ = tracing(ctx)
		return nil, fmt.Errorf("failed to setup dependencies: %w", err)
	}

	if err := bootstrap.SeedDemoData(ctx, cfg, deps); err != nil {
		lgr.Error().Err(err).Msg("Failed to create demo data, proceeding anyway...")
	}

	return &Server{
		config:  cfg,
		router:  bootstrap.SetupRouter(cfg, deps),
		infra:   infra,
		deps:    deps,
		tracing: tracing,
		logger:  lgr,
	}, nil
}

// Run starts the push workers and the HTTP server and blocks until ctx is cancelled or the
// listener fails, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	pushCtx, cancel := context.WithCancel(context.Background())
	s.stopPush = cancel

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		s.deps.WSRouter.Run(pushCtx)
	}()
	if s.deps.Bus != nil {
		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			if err := s.deps.Bus.Run(pushCtx); err != nil {
				s.logger.Error().Err(err).Msg("Event bus consumer stopped")
			}
		}()
	}

	s.http = &http.Server{
		Addr:              ":" + s.config.Server.Port,
		Handler:           telemetry.WrapHandler(s.router, s.config.Tracing.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
		serverErrors <- s.http.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			_ = s.Shutdown(context.Background())
			return fmt.Errorf("error starting server: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info().Msg("Shutdown requested")
	}

	// After ErrServerClosed this waits for the caller that closed the server
	return s.Shutdown(context.Background())
}

// Shutdown gracefully stops the server and closes resources. Only the first call tears
// down; later and concurrent calls wait for it and return its result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { s.closeErr = s.shutdown(ctx) })
	return s.closeErr
}

func (s *Server) shutdown(ctx context.Context) error {
	timeout := helpers.ParseDuration(s.config.Server.ShutdownTimeout, 10*time.Second)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs []error

	if s.http != nil {
		s.logger.Info().Msg("Shutting down HTTP server...")
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	// Websocket sessions are hijacked connections; the router closes them itself
	if s.stopPush != nil {
		s.stopPush()
	}
	s.workers.Wait()

	if s.deps.Bus != nil {
		if err := s.deps.Bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event bus close: %w", err))
		}
	}
	if err := s.infra.Close(); err != nil {
		errs = append(errs, fmt.Errorf("infrastructure close: %w", err))
	}
	if err := s.tracing(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Error().Err(err).Msg("Server shutdown completed with errors")
		return err
	}
	s.logger.Info().Msg("Server shutdown process complete.")
	return nil
}
