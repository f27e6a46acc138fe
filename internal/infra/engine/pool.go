package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vietddude/ocrguard/internal/core/domain"
)

// Pool caches exactly one initialized Handle per pool key. Handles are
// created lazily and live until Remove, Clear or Close.
type Pool struct {
	mu      sync.RWMutex
	handles map[domain.PoolKey]*Handle

	factory Factory
	group   singleflight.Group
	log     *slog.Logger
	onSize  func(int)
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the logger. Default is slog.Default().
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}

// WithSizeObserver registers fn to be called with the handle count after
// every insert or removal.
func WithSizeObserver(fn func(size int)) PoolOption {
	return func(p *Pool) { p.onSize = fn }
}

// NewPool creates an empty pool that builds engines with factory.
func NewPool(factory Factory, opts ...PoolOption) *Pool {
	p := &Pool{
		handles: make(map[domain.PoolKey]*Handle),
		factory: factory,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetOrCreate returns the shared handle for cfg's key, initializing the
// engine on first use. Concurrent first requests for the same key share one
// initialization. A failed initialization is not cached.
func (p *Pool) GetOrCreate(ctx context.Context, cfg domain.EngineConfig) (*Handle, error) {
	key := cfg.Key()
	if h, ok := p.lookup(key); ok {
		return h, nil
	}

	ch := p.group.DoChan(key.String(), func() (any, error) {
		return p.create(key, cfg)
	})

	select {
	case <-ctx.Done():
		return nil, domain.NewError(domain.KindInitialization, "gave up waiting for engine "+key.String(), ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle), nil
	}
}

func (p *Pool) lookup(key domain.PoolKey) (*Handle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handles[key]
	return h, ok
}

func (p *Pool) create(key domain.PoolKey, cfg domain.EngineConfig) (*Handle, error) {
	if h, ok := p.lookup(key); ok {
		return h, nil
	}

	start := time.Now()
	e, err := p.factory(cfg)
	if err != nil {
		p.log.Warn("Engine initialization failed", "key", key.String(), "error", err)
		if errors.Is(err, domain.ErrInitialization) {
			return nil, err
		}
		return nil, domain.NewError(domain.KindInitialization, "initialize engine "+key.String(), err)
	}

	h := newHandle(key, e)

	p.mu.Lock()
	if existing, ok := p.handles[key]; ok {
		p.mu.Unlock()
		p.retire(h)
		return existing, nil
	}
	p.handles[key] = h
	size := len(p.handles)
	p.mu.Unlock()

	p.log.Info("Engine initialized", "key", key.String(), "handle", h.ID, "took", time.Since(start))
	p.notify(size)
	return h, nil
}

// Remove drops the handle for key. The engine is closed once any in-flight
// call on it returns. Reports whether a handle was present.
func (p *Pool) Remove(key domain.PoolKey) bool {
	p.mu.Lock()
	h, ok := p.handles[key]
	delete(p.handles, key)
	size := len(p.handles)
	p.mu.Unlock()

	if !ok {
		return false
	}
	p.log.Info("Engine handle removed", "key", key.String(), "handle", h.ID)
	p.retire(h)
	p.notify(size)
	return true
}

// Clear drops every handle, e.g. after a configuration change.
func (p *Pool) Clear() {
	p.mu.Lock()
	old := p.handles
	p.handles = make(map[domain.PoolKey]*Handle)
	p.mu.Unlock()

	for _, h := range old {
		p.retire(h)
	}
	if len(old) > 0 {
		p.log.Info("Engine pool cleared", "handles", len(old))
	}
	p.notify(0)
}

// Close drops every handle and waits for their engines to close.
func (p *Pool) Close() error {
	p.mu.Lock()
	old := p.handles
	p.handles = make(map[domain.PoolKey]*Handle)
	p.mu.Unlock()

	var errs []error
	for _, h := range old {
		if err := h.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", h.Key, err))
		}
	}
	p.notify(0)
	return errors.Join(errs...)
}

// Len returns the number of live handles.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handles)
}

// Keys returns the live pool keys in sorted order.
func (p *Pool) Keys() []domain.PoolKey {
	p.mu.RLock()
	keys := make([]domain.PoolKey, 0, len(p.handles))
	for k := range p.handles {
		keys = append(keys, k)
	}
	p.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Stats returns a snapshot of every live handle, sorted by key.
func (p *Pool) Stats() []HandleStats {
	p.mu.RLock()
	stats := make([]HandleStats, 0, len(p.handles))
	for _, h := range p.handles {
		stats = append(stats, h.Stats())
	}
	p.mu.RUnlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].Key < stats[j].Key })
	return stats
}

// retire closes h in the background so a hung engine call does not block
// the caller.
func (p *Pool) retire(h *Handle) {
	go func() {
		if err := h.close(); err != nil {
			p.log.Warn("Failed to close engine", "key", h.Key.String(), "handle", h.ID, "error", err)
		}
	}()
}

func (p *Pool) notify(size int) {
	if p.onSize != nil {
		p.onSize(size)
	}
}
