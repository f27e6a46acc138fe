// Package orchestrator composes the validator, engine pool, circuit breaker
// and backoff policy into the end-to-end extraction flow.
//
// Per request:
//  1. Open breaker: fail with ServiceUnavailable, touching nothing else.
//  2. Validation failure: fail immediately, never retried, breaker untouched.
//  3. Up to MaxRetries+1 attempts, each leasing the pooled handle and then
//     running the engine on a worker, both under OperationTimeout, with
//     backoff between failures.
//  4. Report the terminal outcome to the breaker (final attempt only) and to
//     the Observer.
//
// Known limitation: the engine call cannot be interrupted. A timeout only
// bounds how long the request waits. A hung call keeps its handle's lease
// and one worker, so later requests for the same key time out waiting for
// the lease until the handle is removed from the pool. They never hold a
// worker while waiting, so other keys are unaffected.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/vietddude/ocrguard/internal/core/domain"
	"github.com/vietddude/ocrguard/internal/extraction/breaker"
	"github.com/vietddude/ocrguard/internal/extraction/retry"
	"github.com/vietddude/ocrguard/internal/extraction/validate"
	"github.com/vietddude/ocrguard/internal/infra/engine"
)

// ErrWorkersBusy is wrapped by the error returned when every engine worker is
// occupied. It reflects local saturation, not engine health, so it never
// counts against the breaker.
var ErrWorkersBusy = errors.New("all engine workers are busy")

// HandlePool hands out shared engine handles. *engine.Pool implements it.
type HandlePool interface {
	GetOrCreate(ctx context.Context, cfg domain.EngineConfig) (*engine.Handle, error)
}

// Circuit is the breaker contract the orchestrator relies on.
// *breaker.Breaker implements it.
type Circuit interface {
	IsOpen() bool
	RecordSuccess()
	RecordFailure()
	State() breaker.State
}

// Orchestrator runs extraction requests. It is safe for concurrent use.
type Orchestrator struct {
	pool     HandlePool
	circuit  Circuit
	workers  *ants.Pool
	observer Observer
	log      *slog.Logger

	validate func(domain.ImageRef, domain.EngineConfig) (validate.Report, error)
	backoff  func(int, domain.RecoveryPolicy) time.Duration
	sleep    func(context.Context, time.Duration) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver sets the observability collaborator.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithSleeper replaces the backoff sleep, for tests.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// WithBackoff replaces the delay calculation, for tests.
func WithBackoff(fn func(int, domain.RecoveryPolicy) time.Duration) Option {
	return func(o *Orchestrator) { o.backoff = fn }
}

// New creates an Orchestrator. workers bounds the number of concurrent
// engine calls, including hung ones; when all are busy, attempts fail fast
// with a retryable extraction error.
func New(pool HandlePool, circuit Circuit, workers int, opts ...Option) (*Orchestrator, error) {
	if workers < 1 {
		workers = 1
	}
	wp, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create engine worker pool: %w", err)
	}

	o := &Orchestrator{
		pool:     pool,
		circuit:  circuit,
		workers:  wp,
		observer: nopObserver{},
		log:      slog.Default(),
		validate: validate.Check,
		backoff:  retry.Delay,
		sleep:    retry.Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Release stops the worker pool. In-flight engine calls are not interrupted.
func (o *Orchestrator) Release() {
	o.workers.Release()
}

// RunningWorkers returns the number of engine calls currently executing,
// including ones whose requests already timed out.
func (o *Orchestrator) RunningWorkers() int {
	return o.workers.Running()
}

// Extract runs one request to a terminal outcome. Errors are *domain.Error
// values; use errors.Is with the domain sentinels to branch on them.
func (o *Orchestrator) Extract(ctx context.Context, req domain.ExtractionRequest) (domain.ExtractionResult, error) {
	start := time.Now()
	req = withDefaults(req)

	ev := Event{
		RequestID: req.ID,
		Image:     req.Image.Label(),
		Key:       req.Engine.Key(),
	}

	if o.circuit.IsOpen() {
		err := domain.NewError(domain.KindServiceUnavailable, "recognition engine circuit is open", nil)
		o.finish(ev, start, err)
		return domain.ExtractionResult{}, err
	}

	if err := checkRequest(req); err != nil {
		o.finish(ev, start, err)
		return domain.ExtractionResult{}, err
	}

	report, err := o.validate(req.Image, req.Engine)
	if err != nil {
		o.finish(ev, start, err)
		return domain.ExtractionResult{}, err
	}
	ev.Format = report.Format
	ev.ImageSize = report.Size
	ev.EstimatedMemoryMB = report.EstimatedMemoryMB()

	maxAttempts := req.Policy.MaxAttempts()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ev.Attempts = attempt

		text, took, err := o.attempt(ctx, req)
		ev.EngineDuration += took
		if err == nil {
			o.circuit.RecordSuccess()
			o.finish(ev, start, nil)
			return domain.ExtractionResult{
				RequestID:       req.ID,
				Text:            text,
				TotalDuration:   time.Since(start),
				EngineDuration:  ev.EngineDuration,
				Attempts:        attempt,
				Format:          report.Format,
				ImageSize:       report.Size,
				EstimatedMemory: report.EstimatedMemory,
			}, nil
		}
		lastErr = err

		if attempt == maxAttempts || !retry.IsRetryable(err) {
			break
		}

		delay := o.backoff(attempt, req.Policy)
		o.log.Debug("Extraction attempt failed, will retry",
			"request_id", req.ID, "attempt", attempt, "max_attempts", maxAttempts, "delay", delay, "error", err)
		if err := o.sleep(ctx, delay); err != nil {
			lastErr = domain.NewError(domain.KindExtraction, "request cancelled during backoff", err)
			break
		}
	}

	// A caller that walked away says nothing about engine health, and neither
	// does running out of local workers.
	if ctx.Err() == nil && !errors.Is(lastErr, ErrWorkersBusy) {
		o.circuit.RecordFailure()
	}
	o.finish(ev, start, lastErr)
	return domain.ExtractionResult{}, lastErr
}

// attempt leases the handle and runs one bounded recognition on a worker.
// Initialization gets its own OperationTimeout; the lease wait and the engine
// call share a second one. took is the time spent waiting on the engine.
func (o *Orchestrator) attempt(ctx context.Context, req domain.ExtractionRequest) (string, time.Duration, error) {
	timeout := req.Policy.OperationTimeout

	acquireCtx, cancelAcquire := context.WithTimeout(ctx, timeout)
	h, err := o.pool.GetOrCreate(acquireCtx, req.Engine)
	cancelAcquire()
	if err != nil {
		return "", 0, err
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	waitStart := time.Now()
	lease, err := h.Acquire(opCtx)
	if err != nil {
		if ctx.Err() != nil {
			return "", time.Since(waitStart), domain.NewError(domain.KindExtraction, "request cancelled", ctx.Err())
		}
		return "", time.Since(waitStart), err
	}

	type outcome struct {
		text string
		err  error
		took time.Duration
	}
	// Buffered so an abandoned worker never blocks on send.
	done := make(chan outcome, 1)

	err = o.workers.Submit(func() {
		defer lease.Release()
		callStart := time.Now()
		text, err := lease.Recognize(opCtx, req.Image)
		done <- outcome{text: text, err: err, took: time.Since(callStart)}
	})
	if err != nil {
		lease.Release()
		if errors.Is(err, ants.ErrPoolOverload) {
			return "", 0, domain.NewError(domain.KindExtraction, "no engine worker available", ErrWorkersBusy)
		}
		return "", 0, domain.NewError(domain.KindExtraction, "submit engine call", err)
	}

	select {
	case res := <-done:
		if res.err != nil {
			var de *domain.Error
			if !errors.As(res.err, &de) {
				res.err = domain.NewError(domain.KindExtraction, "recognize "+req.Image.Label(), res.err)
			}
			return "", res.took, res.err
		}
		return res.text, res.took, nil
	case <-opCtx.Done():
		waited := time.Since(waitStart)
		if ctx.Err() != nil {
			return "", waited, domain.NewError(domain.KindExtraction, "request cancelled", ctx.Err())
		}
		return "", waited, domain.NewError(domain.KindTimeout,
			fmt.Sprintf("recognition of %s exceeded %s", req.Image.Label(), timeout), opCtx.Err())
	}
}

func (o *Orchestrator) finish(ev Event, start time.Time, err error) {
	ev.TotalDuration = time.Since(start)
	ev.Outcome = Outcome(err)
	ev.Err = err
	o.observer.ObserveExtraction(ev)
	o.observer.ObserveCircuit(o.circuit.State())
}

func withDefaults(req domain.ExtractionRequest) domain.ExtractionRequest {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if len(req.Engine.Languages) == 0 {
		req.Engine = domain.DefaultEngineConfig()
	}
	if req.Policy == (domain.RecoveryPolicy{}) {
		req.Policy = domain.DefaultRecoveryPolicy
	}
	return req
}

// checkRequest rejects partially filled engine configs and policies that
// withDefaults left in place.
func checkRequest(req domain.ExtractionRequest) error {
	if err := req.Engine.Validate(); err != nil {
		return &domain.Error{Kind: domain.KindValidation, Reason: domain.ReasonInvalidConfig, Message: "invalid engine config", Err: err}
	}
	if err := req.Policy.Validate(); err != nil {
		return &domain.Error{Kind: domain.KindValidation, Reason: domain.ReasonInvalidConfig, Message: "invalid recovery policy", Err: err}
	}
	return nil
}
