package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/ocrguard/internal/core/domain"
)

var handleSeq atomic.Int64

// Handle is the shared, pooled wrapper around one Engine. All calls go
// through a one-slot semaphore because the engine is not reentrant.
type Handle struct {
	ID        int64
	Key       domain.PoolKey
	CreatedAt time.Time

	// sem guards engine and closed.
	sem      chan struct{}
	engine   Engine
	closed   bool
	busy     atomic.Bool
	useCount atomic.Int64
	lastUsed atomic.Int64
}

// HandleStats is a point-in-time view of a handle.
type HandleStats struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used,omitempty"`
	Uses      int64     `json:"uses"`
	Busy      bool      `json:"busy"`
}

func newHandle(key domain.PoolKey, e Engine) *Handle {
	return &Handle{
		ID:        handleSeq.Add(1),
		Key:       key,
		CreatedAt: time.Now(),
		sem:       make(chan struct{}, 1),
		engine:    e,
	}
}

// Lease is one exclusive turn on a Handle. Release must be called once the
// caller is done with it; extra calls are no-ops.
type Lease struct {
	h    *Handle
	once sync.Once
}

// Acquire waits for the handle's critical section. Waiting gives up when ctx
// is done, so a caller stuck behind a hung call holds nothing but its own
// goroutine.
func (h *Handle) Acquire(ctx context.Context) (*Lease, error) {
	select {
	case h.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, domain.NewError(domain.KindTimeout, "gave up waiting for engine handle "+h.Key.String(), ctx.Err())
	}

	if h.closed {
		<-h.sem
		return nil, domain.NewError(domain.KindInitialization, "engine handle "+h.Key.String()+" was closed", nil)
	}
	return &Lease{h: h}, nil
}

// Recognize runs the engine. The lease must not have been released.
func (l *Lease) Recognize(ctx context.Context, img domain.ImageRef) (string, error) {
	h := l.h
	h.busy.Store(true)
	defer h.busy.Store(false)
	h.useCount.Add(1)
	h.lastUsed.Store(time.Now().UnixNano())

	return h.engine.Recognize(ctx, img)
}

// Release leaves the critical section.
func (l *Lease) Release() {
	l.once.Do(func() { <-l.h.sem })
}

// Recognize acquires the handle, runs the engine and releases it. A second
// caller waits until the first returns or its ctx is done.
func (h *Handle) Recognize(ctx context.Context, img domain.ImageRef) (string, error) {
	lease, err := h.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer lease.Release()
	return lease.Recognize(ctx, img)
}

// Stats returns a snapshot without taking the critical section.
func (h *Handle) Stats() HandleStats {
	s := HandleStats{
		ID:        h.ID,
		Key:       h.Key.String(),
		CreatedAt: h.CreatedAt,
		Uses:      h.useCount.Load(),
		Busy:      h.busy.Load(),
	}
	if ns := h.lastUsed.Load(); ns > 0 {
		s.LastUsed = time.Unix(0, ns)
	}
	return s
}

// close waits for any in-flight call and then closes the engine.
func (h *Handle) close() error {
	h.sem <- struct{}{}
	defer func() { <-h.sem }()

	if h.closed {
		return nil
	}
	h.closed = true
	return h.engine.Close()
}
