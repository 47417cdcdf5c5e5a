// Package resilience wraps calls to the OCR and translation services with retries and
// circuit breaking.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
)

// State is the position of a breaker.
type State uint32

const (
	Closed   State = iota // calls pass through
	Open                  // calls are rejected
	HalfOpen              // probing recovery
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrOpen is the cause of every rejection while a breaker is open.
var ErrOpen = errors.New("circuit breaker open")

// Breaker stops calling a service after repeated failures and lets a probe through once
// ResetTimeout has passed since the last failure.
type Breaker struct {
	name string
	cfg  Config
	now  func() time.Time
	hook func(name string, from, to State)

	mu          sync.Mutex
	state       State
	failures    int // consecutive, while closed
	probes      int // successes while half-open
	lastFailure time.Time
}

// New creates a named breaker. The name appears in logs, metrics and rejection errors.
func New(name string, cfg Config) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults(), now: time.Now}
}

// WithHook registers fn to run after every state change, outside the breaker's lock.
func (b *Breaker) WithHook(fn func(name string, from, to State)) *Breaker {
	b.hook = fn
	return b
}

// WithClock replaces time.Now.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Name returns the breaker's service name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. An open breaker whose reset timeout has
// elapsed moves to half-open and admits the call.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	if b.state != Open {
		b.mu.Unlock()
		return nil
	}
	wait := b.cfg.ResetTimeout - b.now().Sub(b.lastFailure)
	if wait > 0 {
		b.mu.Unlock()
		return apperrors.Wrapf(ErrOpen, apperrors.CodeUnavailable,
			"%s service temporarily disabled after repeated failures", b.name).
			WithMetadata("service", b.name).
			WithMetadata(RetryAfterKey, wait.Round(time.Second).String())
	}
	from := b.setLocked(HalfOpen)
	b.mu.Unlock()
	b.notify(from, HalfOpen)
	return nil
}

// Success records a healthy call.
func (b *Breaker) Success() {
	b.mu.Lock()
	from, to := b.state, b.state
	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.probes++
		if b.probes >= b.cfg.HalfOpenSuccesses {
			to = Closed
			b.setLocked(Closed)
		}
	}
	b.mu.Unlock()
	b.notify(from, to)
}

// Failure records a call that reflects badly on the service.
func (b *Breaker) Failure() {
	b.mu.Lock()
	b.lastFailure = b.now()
	from, to := b.state, b.state
	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.Threshold {
			to = Open
		}
	case HalfOpen:
		to = Open
	}
	if to != from {
		b.setLocked(to)
	}
	failures := b.failures
	b.mu.Unlock()

	if to == Open && from != Open {
		slog.Warn("circuit breaker opened", "service", b.name, "failures", failures)
	}
	b.notify(from, to)
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.setLocked(Closed)
	b.mu.Unlock()
	b.notify(from, Closed)
}

// setLocked moves to state to and clears the counters that belong to the old state.
func (b *Breaker) setLocked(to State) State {
	from := b.state
	b.state = to
	b.probes = 0
	if to == Closed {
		b.failures = 0
	}
	return from
}

func (b *Breaker) notify(from, to State) {
	if from == to {
		return
	}
	if to != Open {
		slog.Info("circuit breaker "+to.String(), "service", b.name)
	}
	if b.hook != nil {
		b.hook(b.name, from, to)
	}
}

// Execute runs fn unless the breaker is open. Errors that say nothing about the
// service's health (see Countable) count as successes.
func (b *Breaker) Execute(fn func() error) error {
	_, err := ExecuteWithResult(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// ExecuteWithResult is Execute for functions that return a value.
func ExecuteWithResult[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	result, err := fn()
	switch {
	case err == nil:
		b.Success()
		return result, nil
	case Countable(err):
		b.Failure()
	default:
		b.Success()
	}
	return zero, err
}
