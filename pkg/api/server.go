package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/PhotonicGluon/Excalibur/internal/logger"
	"github.com/PhotonicGluon/Excalibur/pkg/auth/token"
	"github.com/PhotonicGluon/Excalibur/pkg/cache"
	"github.com/PhotonicGluon/Excalibur/pkg/config"
	"github.com/PhotonicGluon/Excalibur/pkg/metrics"
	"github.com/PhotonicGluon/Excalibur/pkg/store"
	"github.com/PhotonicGluon/Excalibur/pkg/vault"
)

// Server is the Excalibur HTTP server.
//
// It owns the session state (caches and token service) and the vault; the
// user store is passed in so the CLI can share it.
//
// The server supports graceful shutdown with configurable timeout.
type Server struct {
	server       *http.Server
	config       *config.Config
	sessions     *cache.Cache[string, []byte]
	shutdownOnce sync.Once
}

// BuildInfo identifies the running release.
type BuildInfo struct {
	Version string
	Commit  string
}

// NewServer wires up the API server.
//
// The server is created in a stopped state. Call Start() to begin serving
// requests.
//
// Parameters:
//   - cfg: Loaded configuration
//   - st: Open user store (shared with the CLI)
//   - build: Release identification for /api/well-known/version
//
// Returns a configured but not yet started Server.
func NewServer(cfg *config.Config, st *store.Store, build BuildInfo) (*Server, error) {
	v, err := vault.New(cfg.Server.VaultFolder)
	if err != nil {
		return nil, fmt.Errorf("opening vault: %w", err)
	}

	tokens, err := token.NewService()
	if err != nil {
		return nil, fmt.Errorf("initializing token service: %w", err)
	}

	sessions := cache.New[string, []byte](cfg.Security.CommCacheSize, cfg.Security.SessionDuration)

	router := newRouter(routerDeps{
		cfg:      cfg,
		store:    st,
		vault:    v,
		sessions: sessions,
		tokens:   tokens,
		metrics:  metrics.NewHTTPMetrics(),
		version:  build.Version,
		commit:   build.Commit,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	return &Server{
		server:   server,
		config:   cfg,
		sessions: sessions,
	}, nil
}

// Start starts the API HTTP server and blocks until the context is
// cancelled or an error occurs.
//
// When the context is cancelled, Start initiates graceful shutdown and
// returns.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "port", s.config.API.Port)
		logger.Debug("API endpoints available",
			"auth", fmt.Sprintf("ws://localhost:%d/api/auth", s.config.API.Port),
			"heartbeat", fmt.Sprintf("http://localhost:%d/api/well-known/heartbeat", s.config.API.Port),
		)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// A fresh context: the cancelled one would abort the drain.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown of the API server.
//
// Stop is safe to call multiple times and safe to call concurrently with
// Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("API server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", "error", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server listens on.
func (s *Server) Port() int {
	return s.config.API.Port
}
