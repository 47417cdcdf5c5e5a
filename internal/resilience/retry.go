package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
	"github.com/GriffinCanCode/vets/internal/trace"
)

const (
	DefaultMaxRetries   = 2
	DefaultBaseDelay    = 300 * time.Millisecond
	DefaultMaxDelay     = 5 * time.Second
	DefaultJitterFactor = 0.2

	// RetryAfterKey is the AppError metadata key carrying a server-requested delay.
	RetryAfterKey = "retry_after"
)

// RetryConfig holds retry settings. MaxRetries counts attempts after the first.
type RetryConfig struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
	IsRetryable  func(error) bool
}

// DefaultRetryConfig returns standard retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   DefaultMaxRetries,
		BaseDelay:    DefaultBaseDelay,
		MaxDelay:     DefaultMaxDelay,
		JitterFactor: DefaultJitterFactor,
		IsRetryable:  IsRetryable,
	}
}

// IsRetryable reports whether another attempt could succeed. Errors carrying a status
// (AppErrors implement GRPCStatus) are judged by code; errors without one are transport
// failures and retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrOpen) {
		return false
	}
	s, ok := status.FromError(err)
	if !ok {
		return true
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

// Countable reports whether err reflects the remote service's health and should count
// against a breaker. Caller cancellation and rejected requests do not.
func Countable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	s, ok := status.FromError(err)
	if !ok {
		return true
	}
	switch s.Code() {
	case codes.Unauthenticated, codes.PermissionDenied, codes.InvalidArgument, codes.Canceled:
		return false
	default:
		return true
	}
}

// WithRetryAfter records a Retry-After header value (delta seconds) on err. Other
// header forms and non-AppErrors are returned unchanged.
func WithRetryAfter(err error, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return err
	}
	secs, convErr := strconv.Atoi(header)
	if convErr != nil || secs < 0 {
		return err
	}
	appErr, ok := apperrors.As(err)
	if !ok {
		return err
	}
	return appErr.WithMetadata(RetryAfterKey, (time.Duration(secs) * time.Second).String())
}

// retryAfter extracts the delay stored by WithRetryAfter.
func retryAfter(err error) (time.Duration, bool) {
	appErr, ok := apperrors.As(err)
	if !ok {
		return 0, false
	}
	d, parseErr := time.ParseDuration(appErr.Metadata[RetryAfterKey])
	if parseErr != nil {
		return 0, false
	}
	return d, true
}

// Retry calls fn until it succeeds, returns a non-retryable error, or MaxRetries extra
// attempts have failed. The last error is returned.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	log := trace.Logger(ctx)

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= cfg.MaxRetries || !cfg.IsRetryable(err) {
			return err
		}

		delay := cfg.delay(attempt, err)
		log.Debug("retrying after error", "attempt", attempt+1, "max", cfg.MaxRetries, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// delay is the wait before attempt+1: exponential backoff with jitter, raised to any
// server-requested delay and capped at MaxDelay.
func (c RetryConfig) delay(attempt int, err error) time.Duration {
	d := c.BaseDelay << min(attempt, 6)
	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	d += time.Duration(float64(d) * c.JitterFactor * (rand.Float64() - 0.5))
	if hint, ok := retryAfter(err); ok && hint > d {
		d = hint
	}
	return min(d, c.MaxDelay)
}

func (c RetryConfig) withDefaults() RetryConfig {
	c.MaxRetries = max(c.MaxRetries, 0)
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	c.JitterFactor = max(c.JitterFactor, 0)
	if c.IsRetryable == nil {
		c.IsRetryable = IsRetryable
	}
	return c
}
