package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	// ErrThrottled marks a provider response that signals throttling
	// (HTTP 429 or a RESOURCE_EXHAUSTED status). Providers wrap it.
	ErrThrottled = errors.New("provider throttled request")

	// ErrProviderThrottled is returned when every attempt was throttled
	ErrProviderThrottled = errors.New("provider rate limit exhausted")

	// ErrProviderError is returned when attempts were exhausted for any other reason
	ErrProviderError = errors.New("provider call failed")
)

const (
	// DefaultMaxAttempts is the number of attempts made per call
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the backoff before the second attempt
	DefaultBaseDelay = 30 * time.Second

	// DefaultMaxDelay caps the backoff between attempts
	DefaultMaxDelay = 120 * time.Second

	// DefaultMultiplier grows the backoff after every failed attempt
	DefaultMultiplier = 2.0
)

// RetryConfig configures exponential backoff retry behavior
type RetryConfig struct {
	MaxAttempts int           // Total attempts including the first
	BaseDelay   time.Duration // Delay after the first failure
	MaxDelay    time.Duration // Maximum delay between attempts
	Multiplier  float64       // Exponential backoff multiplier
}

// DefaultRetryConfig returns the default retry policy
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  DefaultMultiplier,
	}
}

// Retrier runs calls under a Limiter with exponential backoff
type Retrier struct {
	limiter *Limiter
	config  RetryConfig
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewRetrier creates a retrier. limiter may be nil, in which case attempts are
// not rate limited.
func NewRetrier(config RetryConfig, limiter *Limiter, opts ...Option) *Retrier {
	defaults := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.BaseDelay < 0 {
		config.BaseDelay = 0
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.Multiplier < 1 {
		config.Multiplier = defaults.Multiplier
	}

	o := buildOptions(opts)
	return &Retrier{
		limiter: limiter,
		config:  config,
		clock:   o.clock,
		logger:  o.logger,
	}
}

// Config returns the effective retry policy
func (r *Retrier) Config() RetryConfig {
	return r.config
}

// Do runs fn until it succeeds or attempts are exhausted
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do executes fn with rate limiting and exponential backoff. Context
// cancellation is returned as is and never retried. On exhaustion the error
// is ErrProviderThrottled when every attempt was throttled and
// ErrProviderError otherwise.
func Do[T any](ctx context.Context, r *Retrier, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	allThrottled := true
	backoff := r.config.BaseDelay

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Acquire(ctx); err != nil {
				return zero, err
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !errors.Is(err, ErrThrottled) {
			allThrottled = false
		}

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt == r.config.MaxAttempts {
			break
		}

		r.logger.Warn("provider call failed, retrying",
			"attempt", attempt,
			"max_attempts", r.config.MaxAttempts,
			"backoff", backoff,
			"throttled", errors.Is(err, ErrThrottled),
			"error", err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-r.clock.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * r.config.Multiplier)
		if backoff > r.config.MaxDelay {
			backoff = r.config.MaxDelay
		}
	}

	if allThrottled {
		return zero, fmt.Errorf("%w after %d attempts: %w", ErrProviderThrottled, r.config.MaxAttempts, lastErr)
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrProviderError, r.config.MaxAttempts, lastErr)
}
