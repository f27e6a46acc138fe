package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestBreaker_StaysClosedBelowThreshold(t *testing.T) {
	b := New(3, time.Minute)
	b.RecordFailure()
	b.RecordFailure()

	assert.False(t, b.IsOpen())
	assert.Equal(t, uint32(2), b.Snapshot().FailureCount, "IsOpen must not reset below threshold")
}

func TestBreaker_OpenUntilResetTimeout(t *testing.T) {
	policies := []struct {
		threshold uint32
		reset     time.Duration
	}{
		{1, time.Second},
		{3, 30 * time.Second},
		{5, time.Minute},
		{10, 5 * time.Minute},
	}

	for _, p := range policies {
		clock := newFakeClock()
		b := New(p.threshold, p.reset, WithClock(clock.Now))

		for i := uint32(0); i < p.threshold; i++ {
			require.False(t, b.IsOpen())
			b.RecordFailure()
		}

		// Every probe strictly inside the cooldown sees an open breaker.
		step := p.reset / 7
		for elapsed := time.Duration(0); elapsed < p.reset; elapsed += step {
			assert.True(t, b.IsOpen(), "threshold=%d reset=%s elapsed=%s", p.threshold, p.reset, elapsed)
			assert.Equal(t, p.threshold, b.Snapshot().FailureCount)
			clock.Advance(step)
		}
	}
}

func TestBreaker_ProbeAfterResetTimeout(t *testing.T) {
	clock := newFakeClock()
	b := New(5, time.Minute, WithClock(clock.Now))
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	require.True(t, b.IsOpen())

	clock.Advance(time.Minute)

	assert.False(t, b.IsOpen(), "first call after cooldown lets a probe through")
	assert.Equal(t, uint32(0), b.Snapshot().FailureCount)
	assert.Nil(t, b.Snapshot().LastFailureAt)

	// Probe fails once: still below threshold.
	b.RecordFailure()
	assert.False(t, b.IsOpen())
	assert.Equal(t, uint32(1), b.Snapshot().FailureCount)
}

func TestBreaker_LatestFailureExtendsCooldown(t *testing.T) {
	clock := newFakeClock()
	b := New(2, time.Minute, WithClock(clock.Now))
	b.RecordFailure()
	b.RecordFailure()

	clock.Advance(50 * time.Second)
	b.RecordFailure() // in-flight request finishing late

	clock.Advance(20 * time.Second)
	assert.True(t, b.IsOpen(), "cooldown counts from the last failure")
	assert.Equal(t, uint32(3), b.Snapshot().FailureCount)
}

func TestBreaker_SuccessResets(t *testing.T) {
	b := New(3, time.Minute)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	s := b.Snapshot()
	assert.Equal(t, uint32(0), s.FailureCount)
	assert.Nil(t, s.LastFailureAt)
	assert.Equal(t, StateClosed, s.State)
}

func TestBreaker_Snapshot(t *testing.T) {
	clock := newFakeClock()
	b := New(2, time.Minute, WithClock(clock.Now))
	b.RecordFailure()
	b.RecordFailure()
	clock.Advance(15 * time.Second)

	s := b.Snapshot()
	assert.Equal(t, StateOpen, s.State)
	assert.Equal(t, "open", s.StateName)
	assert.Equal(t, 45*time.Second, s.RetryAfter)
	require.NotNil(t, s.LastFailureAt)

	clock.Advance(time.Hour)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(2), b.Snapshot().FailureCount, "Snapshot never resets")
}

func TestBreaker_Listener(t *testing.T) {
	clock := newFakeClock()
	var transitions []string
	b := New(2, time.Minute, WithClock(clock.Now), WithListener(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}))

	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	assert.True(t, b.IsOpen())
	clock.Advance(time.Minute)
	assert.False(t, b.IsOpen())
	b.RecordSuccess()

	assert.Equal(t, []string{"closed->open", "open->closed"}, transitions)
}

func TestBreaker_ConcurrentFailures(t *testing.T) {
	b := New(1000, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.RecordFailure()
				b.IsOpen()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint32(1000), b.Snapshot().FailureCount)
	assert.True(t, b.IsOpen())
}
