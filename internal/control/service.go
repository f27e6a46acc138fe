package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/ocrguard/internal/api"
	"github.com/vietddude/ocrguard/internal/api/handler"
	"github.com/vietddude/ocrguard/internal/core/config"
	"github.com/vietddude/ocrguard/internal/core/domain"
	"github.com/vietddude/ocrguard/internal/extraction/breaker"
	"github.com/vietddude/ocrguard/internal/extraction/metrics"
	"github.com/vietddude/ocrguard/internal/extraction/orchestrator"
	"github.com/vietddude/ocrguard/internal/infra/engine"
)

const defaultWorkers = 16

// Service owns the engine pool, the circuit breaker, the orchestrator and the
// HTTP server, and manages their lifecycle.
type Service struct {
	cfg      Config
	pool     *engine.Pool
	breaker  *breaker.Breaker
	orch     *orchestrator.Orchestrator
	recorder *metrics.Recorder
	server   *http.Server
	log      *slog.Logger
	started  time.Time

	breakerOpts []breaker.Option
}

// Config holds the service configuration.
type Config struct {
	Server  config.ServerConfig
	Engine  domain.EngineConfig
	Policy  domain.RecoveryPolicy
	Workers int
}

// ConfigFrom resolves the loaded application config.
func ConfigFrom(app *config.AppConfig) (Config, error) {
	eng, err := app.EngineConfig()
	if err != nil {
		return Config{}, err
	}
	policy := app.RecoveryPolicy()
	if err := policy.Validate(); err != nil {
		return Config{}, err
	}
	return Config{
		Server:  app.Server,
		Engine:  eng,
		Policy:  policy,
		Workers: app.Workers.Size,
	}, nil
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithBreakerClock replaces the breaker's clock, for tests.
func WithBreakerClock(now func() time.Time) Option {
	return func(s *Service) {
		s.breakerOpts = append(s.breakerOpts, breaker.WithClock(now))
	}
}

// NewService wires the extraction stack around factory.
func NewService(cfg Config, factory engine.Factory, opts ...Option) (*Service, error) {
	if factory == nil {
		return nil, errors.New("engine factory is required")
	}
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}

	s := &Service{
		cfg:     cfg,
		log:     slog.Default(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recorder = metrics.NewRecorder(s.log)
	s.breaker = breaker.New(cfg.Policy.CircuitFailureThreshold, cfg.Policy.CircuitResetTimeout,
		append(s.breakerOpts, breaker.WithListener(s.recorder.CircuitTransition))...)

	s.pool = engine.NewPool(factory,
		engine.WithPoolLogger(s.log),
		engine.WithSizeObserver(s.recorder.PoolSize),
	)

	orch, err := orchestrator.New(s.pool, s.breaker, cfg.Workers,
		orchestrator.WithObserver(s.recorder),
		orchestrator.WithLogger(s.log),
	)
	if err != nil {
		return nil, err
	}
	s.orch = orch

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(s, cfg.Server, cfg.Engine.MaxFileSize, s.log, s.started),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Extract runs one request. Zero Engine and Policy fields take the service
// defaults.
func (s *Service) Extract(ctx context.Context, req domain.ExtractionRequest) (domain.ExtractionResult, error) {
	if len(req.Engine.Languages) == 0 {
		req.Engine = s.cfg.Engine
	}
	if req.Policy == (domain.RecoveryPolicy{}) {
		req.Policy = s.cfg.Policy
	}
	return s.orch.Extract(ctx, req)
}

// Status reports the breaker, pool and worker state.
func (s *Service) Status() handler.Status {
	return handler.Status{
		Circuit:        s.breaker.Snapshot(),
		Pool:           s.pool.Stats(),
		RunningWorkers: s.orch.RunningWorkers(),
	}
}

// ResetEngine drops the pooled handle for the configured engine so the next
// request builds a fresh one. The old handle is closed once its in-flight
// call returns.
func (s *Service) ResetEngine() bool {
	removed := s.pool.Remove(s.cfg.Engine.Key())
	s.log.Warn("Engine reset requested", "key", s.cfg.Engine.Key().String(), "removed", removed)
	return removed
}

// Handler returns the HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server and the background metrics updater.
func (s *Service) Start(ctx context.Context) error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server failed", "error", err)
		}
	}()

	go s.runMetricsUpdater(ctx)

	s.log.Info("Extraction service started",
		"addr", s.server.Addr,
		"languages", s.cfg.Engine.Key().String(),
		"workers", s.cfg.Workers,
		"max_retries", s.cfg.Policy.MaxRetries,
		"circuit_threshold", s.cfg.Policy.CircuitFailureThreshold,
	)
	return nil
}

// Stop shuts down the HTTP server, then releases workers and closes engines.
// Engines busy with a hung call are abandoned when ctx expires.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping extraction service...")

	serverErr := s.server.Shutdown(ctx)
	return errors.Join(serverErr, s.Close(ctx))
}

// Close releases workers and closes all engines without touching the HTTP
// server. Used by one-shot commands that never call Start.
func (s *Service) Close(ctx context.Context) error {
	s.orch.Release()

	done := make(chan error, 1)
	go func() { done <- s.pool.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("close engines: %w", ctx.Err())
	}
}

// runMetricsUpdater refreshes gauges whose values change without a request,
// such as the circuit closing once its cooldown elapses.
func (s *Service) runMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.recorder.ObserveCircuit(s.breaker.State())
			s.recorder.PoolSize(s.pool.Len())
			s.log.Debug("Updated service gauges", "circuit", s.breaker.State().String(), "pool_size", s.pool.Len())
		}
	}
}
