// Package breaker implements the failure-counting gate shared by all
// extraction requests.
//
// The breaker stores only a failure count and the time of the last failure.
// Open/Closed is derived on every read, so there is no cached state that can
// go stale.
package breaker

import (
	"sync"
	"time"
)

// State is the derived breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// Snapshot is a point-in-time view of the breaker.
type Snapshot struct {
	State         State         `json:"-"`
	StateName     string        `json:"state"`
	FailureCount  uint32        `json:"failure_count"`
	Threshold     uint32        `json:"threshold"`
	LastFailureAt *time.Time    `json:"last_failure_at,omitempty"`
	RetryAfter    time.Duration `json:"retry_after_ns,omitempty"`
}

// Listener receives state transitions. It is called outside the breaker's
// lock.
type Listener func(from, to State)

// Breaker fails fast once failures reach a threshold and lets one probe
// through after the reset timeout.
type Breaker struct {
	mu           sync.Mutex
	failureCount uint32
	lastFailure  time.Time // zero when unset

	threshold    uint32
	resetTimeout time.Duration
	now          func() time.Time
	listener     Listener
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithListener registers a transition listener.
func WithListener(l Listener) Option {
	return func(b *Breaker) { b.listener = l }
}

// New creates a closed breaker. threshold must be > 0.
func New(threshold uint32, resetTimeout time.Duration, opts ...Option) *Breaker {
	if threshold == 0 {
		threshold = 1
	}
	b := &Breaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IsOpen reports whether requests should be rejected. When the threshold has
// been reached but the reset timeout has elapsed since the last failure, the
// counters are zeroed and false is returned, letting the next request probe.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	if b.failureCount < b.threshold {
		b.mu.Unlock()
		return false
	}
	if b.now().Sub(b.lastFailure) < b.resetTimeout {
		b.mu.Unlock()
		return true
	}
	b.failureCount = 0
	b.lastFailure = time.Time{}
	b.mu.Unlock()

	b.emit(StateOpen, StateClosed)
	return false
}

// RecordSuccess zeroes the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	wasOpen := b.failureCount >= b.threshold
	b.failureCount = 0
	b.lastFailure = time.Time{}
	b.mu.Unlock()

	if wasOpen {
		b.emit(StateOpen, StateClosed)
	}
}

// RecordFailure increments the failure count and stamps the failure time.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	if b.failureCount < ^uint32(0) {
		b.failureCount++
	}
	b.lastFailure = b.now()
	opened := b.failureCount == b.threshold
	b.mu.Unlock()

	if opened {
		b.emit(StateClosed, StateOpen)
	}
}

// State derives the current state without resetting anything.
func (b *Breaker) State() State {
	return b.Snapshot().State
}

// Snapshot returns the current counters and derived state. Unlike IsOpen it
// never resets the counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		State:        StateClosed,
		FailureCount: b.failureCount,
		Threshold:    b.threshold,
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		s.LastFailureAt = &t
	}
	if b.failureCount >= b.threshold {
		if remaining := b.resetTimeout - b.now().Sub(b.lastFailure); remaining > 0 {
			s.State = StateOpen
			s.RetryAfter = remaining
		}
	}
	s.StateName = s.State.String()
	return s
}

func (b *Breaker) emit(from, to State) {
	if b.listener != nil {
		b.listener(from, to)
	}
}
