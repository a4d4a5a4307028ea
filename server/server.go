// Package server assembles the luagen HTTP server from configuration and
// keeps it in sync with configuration changes.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"github.com/teilomillet/luagen/config"
	"github.com/teilomillet/luagen/server/circuitbreaker"
	"github.com/teilomillet/luagen/server/handlers"
	"github.com/teilomillet/luagen/server/metrics"
	"github.com/teilomillet/luagen/server/processing"
	"github.com/teilomillet/luagen/server/provider"
	"github.com/teilomillet/luagen/server/routing"
	"go.uber.org/zap"
)

// Server represents the HTTP server. The active router is swapped atomically
// whenever the configuration changes; in-flight requests finish on the
// router they started with.
type Server struct {
	watcher config.Watcher
	logger  *zap.Logger
	metrics *metrics.Metrics
	breaker *circuitbreaker.CircuitBreaker
	handler atomic.Value // http.Handler
}

// NewServer creates a server that watches configPath for changes.
func NewServer(configPath string, logger *zap.Logger) (*Server, error) {
	watcher, err := config.NewConfigWatcher(configPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	s, err := NewServerWithConfig(watcher, logger)
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}
	return s, nil
}

// NewServerWithConfig creates a server driven by watcher. Circuit breaker
// settings are read once here; changing them requires a restart.
func NewServerWithConfig(watcher config.Watcher, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		watcher: watcher,
		logger:  logger,
		metrics: metrics.NewMetrics(),
	}

	cfg := watcher.GetCurrentConfig()
	if cfg.CircuitBreaker.Enabled {
		breaker, err := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
			Name:             "groq",
			MaxRequests:      cfg.CircuitBreaker.MaxRequests,
			Interval:         cfg.CircuitBreaker.Interval,
			Timeout:          cfg.CircuitBreaker.Timeout,
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			IsSuccessful:     provider.IsBreakerSuccess,
		}, logger, s.metrics.Registry())
		if err != nil {
			return nil, fmt.Errorf("failed to create circuit breaker: %w", err)
		}
		s.breaker = breaker
	}

	if err := s.applyConfig(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// applyConfig builds a router for cfg and makes it the active handler.
func (s *Server) applyConfig(cfg *config.Config) error {
	processor, err := processing.NewProcessor(cfg.Generation)
	if err != nil {
		return fmt.Errorf("failed to build prompts: %w", err)
	}

	client := provider.NewGroqClient(provider.Options{
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
		Breaker: s.breaker,
		Metrics: s.metrics,
		Logger:  s.logger,
	})
	generate := handlers.NewGenerateHandler(handlers.OptionsFromConfig(cfg), client, processor, s.metrics, s.logger)

	apiKey := cfg.Provider.APIKey
	checks := map[string]routing.HealthCheck{
		"credential": func() bool { return apiKey != "" },
	}
	if s.breaker != nil {
		breaker := s.breaker
		checks["circuit_breaker"] = func() bool { return breaker.State() != gobreaker.StateOpen }
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = s.metrics
	}

	if apiKey == "" {
		s.logger.Warn("provider credential is not configured; generation requests will fail",
			zap.String("env", config.EnvAPIKey))
	}

	s.handler.Store(http.Handler(routing.NewRouter(cfg, generate, m, checks, s.logger)))
	return nil
}

// ServeHTTP dispatches to the active router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.Load().(http.Handler).ServeHTTP(w, r)
}

// Start serves until ctx is cancelled, then shuts down gracefully. Config
// updates swap the router; a changed listener setting rebinds the server.
func (s *Server) Start(ctx context.Context) error {
	updates := s.watcher.Subscribe()
	current := s.watcher.GetCurrentConfig()

	httpServer, errChan, err := s.listen(current.Server)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return s.shutdown(httpServer, current.Server.ShutdownTimeout)

		case err := <-errChan:
			return err

		case cfg, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if err := s.applyConfig(cfg); err != nil {
				s.logger.Error("rejected configuration update", zap.Error(err))
				continue
			}
			s.logger.Info("configuration updated")

			if listenerChanged(current.Server, cfg.Server) {
				if err := s.shutdown(httpServer, current.Server.ShutdownTimeout); err != nil {
					s.logger.Warn("previous listener did not shut down cleanly", zap.Error(err))
				}
				httpServer, errChan, err = s.listen(cfg.Server)
				if err != nil {
					return err
				}
			}
			current = cfg
		}
	}
}

// listen binds synchronously so address errors surface immediately, then
// serves in the background.
func (s *Server) listen(cfg config.ServerConfig) (*http.Server, <-chan error, error) {
	httpServer := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		Handler:        s,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", httpServer.Addr, err)
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Server started", zap.String("address", httpServer.Addr))
		if err := httpServer.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()
	return httpServer, errChan, nil
}

func (s *Server) shutdown(httpServer *http.Server, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("Shutting down server", zap.String("address", httpServer.Addr))
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("error during server shutdown: %w", err)
	}
	return nil
}

func listenerChanged(old, next config.ServerConfig) bool {
	return old.Port != next.Port ||
		old.ReadTimeout != next.ReadTimeout ||
		old.WriteTimeout != next.WriteTimeout ||
		old.MaxHeaderBytes != next.MaxHeaderBytes
}
