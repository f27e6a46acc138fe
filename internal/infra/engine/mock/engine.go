// Package mock provides an instrumented test double for engine.Engine.
//
// The mock records every call interval so tests can assert that calls on a
// shared handle never overlap, and lets tests script failures, delays and
// hangs.
//
//	eng := mock.NewEngine().WithRecognizeFunc(func(ctx context.Context, call int, img domain.ImageRef) (string, error) {
//	    if call <= 2 {
//	        return "", domain.NewError(domain.KindExtraction, "boom", nil)
//	    }
//	    return "2 cups flour", nil
//	})
//	pool := engine.NewPool(mock.FactoryFor(eng).Build)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/ocrguard/internal/core/domain"
	"github.com/vietddude/ocrguard/internal/infra/engine"
)

// Interval is the wall-clock span of one Recognize call.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two intervals intersect.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// RecognizeFunc scripts one call. call is 1-based across the engine's
// lifetime.
type RecognizeFunc func(ctx context.Context, call int, img domain.ImageRef) (string, error)

// Engine is a test double for engine.Engine.
type Engine struct {
	mu        sync.Mutex
	fn        RecognizeFunc
	delay     time.Duration
	calls     int
	intervals []Interval
	closed    bool
}

// NewEngine creates a mock that returns "mock text" for every call.
func NewEngine() *Engine {
	return &Engine{}
}

// WithRecognizeFunc overrides the default behavior.
func (e *Engine) WithRecognizeFunc(fn RecognizeFunc) *Engine {
	e.fn = fn
	return e
}

// WithDelay makes every call take at least d.
func (e *Engine) WithDelay(d time.Duration) *Engine {
	e.delay = d
	return e
}

// Recognize implements engine.Engine.
func (e *Engine) Recognize(ctx context.Context, img domain.ImageRef) (string, error) {
	start := time.Now()

	e.mu.Lock()
	e.calls++
	call := e.calls
	fn, delay := e.fn, e.delay
	e.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	text, err := "mock text", error(nil)
	if fn != nil {
		text, err = fn(ctx, call, img)
	}

	e.mu.Lock()
	e.intervals = append(e.intervals, Interval{Start: start, End: time.Now()})
	e.mu.Unlock()

	return text, err
}

// Close implements engine.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// CallCount returns the number of Recognize calls started.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Intervals returns the recorded spans of finished calls.
func (e *Engine) Intervals() []Interval {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Interval(nil), e.intervals...)
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Factory counts engine constructions. Its Build method is an engine.Factory.
type Factory struct {
	mu     sync.Mutex
	New    func(cfg domain.EngineConfig) (engine.Engine, error)
	builds int
}

// NewFactory creates a factory that builds a fresh mock Engine per call.
func NewFactory() *Factory {
	return &Factory{}
}

// FactoryFor creates a factory that always returns eng.
func FactoryFor(eng *Engine) *Factory {
	return &Factory{New: func(domain.EngineConfig) (engine.Engine, error) { return eng, nil }}
}

// Build implements engine.Factory.
func (f *Factory) Build(cfg domain.EngineConfig) (engine.Engine, error) {
	f.mu.Lock()
	f.builds++
	newFn := f.New
	f.mu.Unlock()

	if newFn != nil {
		return newFn(cfg)
	}
	return NewEngine(), nil
}

// Builds returns the number of Build calls.
func (f *Factory) Builds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}
