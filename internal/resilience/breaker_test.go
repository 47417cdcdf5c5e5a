package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
)

// fakeClock is advanced by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	clock := newFakeClock()
	return New("ocr", cfg).WithClock(clock.Now), clock
}

func TestBreakerStartsClosed(t *testing.T) {
	b := New("ocr", DefaultConfig())
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, "ocr", b.Name())
	assert.NoError(t, b.Allow())
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, clock := newTestBreaker(Config{Threshold: 3, ResetTimeout: 10 * time.Second, HalfOpenSuccesses: 2})

	b.Failure()
	b.Failure()
	assert.Equal(t, Closed, b.State())
	b.Failure()
	require.Equal(t, Open, b.State())

	clock.Advance(4 * time.Second)
	err := b.Allow()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, apperrors.CodeUnavailable, apperrors.CodeOf(err))

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "ocr", appErr.Metadata["service"])
	assert.Equal(t, "6s", appErr.Metadata["retry_after"])
}

func TestBreakerHalfOpenCycle(t *testing.T) {
	b, clock := newTestBreaker(Config{Threshold: 1, ResetTimeout: time.Second, HalfOpenSuccesses: 2})
	b.Failure()
	require.Equal(t, Open, b.State())

	clock.Advance(time.Second)
	require.NoError(t, b.Allow())
	require.Equal(t, HalfOpen, b.State())

	b.Success()
	assert.Equal(t, HalfOpen, b.State())
	b.Success()
	assert.Equal(t, Closed, b.State())
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	b, clock := newTestBreaker(Config{Threshold: 1, ResetTimeout: time.Second, HalfOpenSuccesses: 3})
	b.Failure()
	clock.Advance(2 * time.Second)
	require.NoError(t, b.Allow())

	b.Failure()
	assert.Equal(t, Open, b.State())
	assert.ErrorIs(t, b.Allow(), ErrOpen)
}

func TestBreakerReset(t *testing.T) {
	b, _ := newTestBreaker(Config{Threshold: 1, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})
	b.Failure()
	b.Reset()
	assert.Equal(t, Closed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerSuccessClearsFailureStreak(t *testing.T) {
	b, _ := newTestBreaker(Config{Threshold: 3, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()

	assert.Equal(t, Closed, b.State())
}

func TestBreakerExecute(t *testing.T) {
	b, _ := newTestBreaker(Config{Threshold: 2, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})
	require.NoError(t, b.Execute(func() error { return nil }))

	reset := errors.New("connection reset")
	calls := 0
	for range 2 {
		err := b.Execute(func() error { calls++; return reset })
		assert.Same(t, reset, err)
	}
	require.Equal(t, Open, b.State())

	err := b.Execute(func() error { calls++; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, 2, calls)
}

func TestBreakerIgnoresUncountableErrors(t *testing.T) {
	b, _ := newTestBreaker(Config{Threshold: 1, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})

	_ = b.Execute(func() error { return apperrors.New(apperrors.CodeTranslationAuthFailed, "bad key") })
	_ = b.Execute(func() error { return context.Canceled })

	assert.Equal(t, Closed, b.State())
}

func TestBreakerExecuteWithResult(t *testing.T) {
	b := New("translate", DefaultConfig())

	got, err := ExecuteWithResult(b, func() (string, error) { return "テスト", nil })
	require.NoError(t, err)
	assert.Equal(t, "テスト", got)

	got, err = ExecuteWithResult(b, func() (string, error) { return "partial", errors.New("boom") })
	assert.Error(t, err)
	assert.Empty(t, got)
}

func TestBreakerHookSeesEveryTransition(t *testing.T) {
	type change struct {
		name     string
		from, to State
	}
	var changes []change
	b, clock := newTestBreaker(Config{Threshold: 1, ResetTimeout: time.Second, HalfOpenSuccesses: 1})
	b.WithHook(func(name string, from, to State) {
		changes = append(changes, change{name, from, to})
	})

	b.Failure()
	b.Failure() // already open
	clock.Advance(time.Second)
	require.NoError(t, b.Allow())
	b.Success()

	assert.Equal(t, []change{
		{"ocr", Closed, Open},
		{"ocr", Open, HalfOpen},
		{"ocr", HalfOpen, Closed},
	}, changes)
}

func TestBreakerConcurrentUse(t *testing.T) {
	b := New("ocr", Config{Threshold: 100, ResetTimeout: time.Second, HalfOpenSuccesses: 10})

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Allow()
			if i%2 == 0 {
				b.Success()
			} else {
				b.Failure()
			}
		}()
	}
	wg.Wait()
	assert.Contains(t, []State{Closed, Open, HalfOpen}, b.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half-open", HalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultThreshold, cfg.Threshold)
	assert.Equal(t, DefaultResetTimeout, cfg.ResetTimeout)
	assert.Equal(t, DefaultHalfOpenSuccesses, cfg.HalfOpenSuccesses)
}
