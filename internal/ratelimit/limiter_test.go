package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// windowCounter is a Counter whose windows expire on the given clock
type windowCounter struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	counts  map[string]int64
	expires map[string]time.Time
	calls   int
	err     error
}

func newWindowCounter(clock clockwork.Clock) *windowCounter {
	return &windowCounter{
		clock:   clock,
		counts:  make(map[string]int64),
		expires: make(map[string]time.Time),
	}
}

func (c *windowCounter) IncrWithExpiry(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if c.err != nil {
		return 0, 0, c.err
	}

	now := c.clock.Now()
	if exp, ok := c.expires[key]; !ok || !now.Before(exp) {
		c.counts[key] = 0
		c.expires[key] = now.Add(window)
	}
	c.counts[key]++
	return c.counts[key], c.expires[key].Sub(now), nil
}

func (c *windowCounter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestNewLimiter_Defaults(t *testing.T) {
	l := NewLimiter(newWindowCounter(clockwork.NewFakeClock()), Config{})
	assert.Equal(t, DefaultConfig(), l.Config())
}

func TestLimiter_AdmitsUpToCeiling(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewLimiter(newWindowCounter(clock), Config{Ceiling: 3, Window: time.Minute}, WithClock(clock))

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
}

func TestLimiter_WaitsForWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewLimiter(newWindowCounter(clock), Config{Ceiling: 3, Window: time.Minute}, WithClock(clock))

	done := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			done <- l.Acquire(context.Background())
		}()
	}

	for i := 0; i < 3; i++ {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatalf("call %d was not admitted within the ceiling", i+1)
		}
	}

	// The two calls over the ceiling are parked on the clock
	clock.BlockUntil(2)
	select {
	case <-done:
		t.Fatal("call admitted over the ceiling before the window expired")
	default:
	}

	clock.Advance(time.Minute)

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("waiting call was not released after the window")
		}
	}
}

func TestLimiter_FailsOpen(t *testing.T) {
	clock := clockwork.NewFakeClock()
	counter := newWindowCounter(clock)
	counter.err = errors.New("connection refused")
	l := NewLimiter(counter, Config{Ceiling: 1, Window: time.Minute}, WithClock(clock))

	for i := 0; i < 5; i++ {
		assert.NoError(t, l.Acquire(context.Background()))
	}
	assert.Equal(t, 5, counter.Calls())
}

func TestLimiter_ContextCancelled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewLimiter(newWindowCounter(clock), Config{Ceiling: 1, Window: time.Minute}, WithClock(clock))
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Acquire(ctx)
	}()

	clock.BlockUntil(1)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Acquire did not return after cancellation")
	}
}

func TestLimiter_AlreadyCancelled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	counter := newWindowCounter(clock)
	l := NewLimiter(counter, Config{Ceiling: 1, Window: time.Minute}, WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
	assert.Equal(t, 0, counter.Calls())
}

func TestLimiter_SharedCounter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	counter := newWindowCounter(clock)
	cfg := Config{Ceiling: 2, Window: time.Minute, Key: "ratelimit:shared"}
	a := NewLimiter(counter, cfg, WithClock(clock))
	b := NewLimiter(counter, cfg, WithClock(clock))

	require.NoError(t, a.Acquire(context.Background()))
	require.NoError(t, b.Acquire(context.Background()))

	done := make(chan error, 1)
	go func() {
		done <- a.Acquire(context.Background())
	}()

	clock.BlockUntil(1)
	clock.Advance(time.Minute)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("third call across limiters was not released")
	}
}
