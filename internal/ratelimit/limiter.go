package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultCeiling is the number of provider calls admitted per window
	DefaultCeiling = 40

	// DefaultWindow is the length of one admission window
	DefaultWindow = 60 * time.Second

	// KeyPrefix namespaces limiter counters in a shared store
	KeyPrefix = "ratelimit:"

	// DefaultKey is the counter key used when none is configured
	DefaultKey = KeyPrefix + "embedding"
)

// Counter is an atomic increment-with-expiry primitive. The first increment of
// a key starts its window; later increments return the remaining TTL.
type Counter interface {
	IncrWithExpiry(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// Config configures a Limiter
type Config struct {
	Ceiling int           // Calls admitted per window
	Window  time.Duration // Window length
	Key     string        // Counter key; processes sharing a key share a budget
}

// DefaultConfig returns the default admission budget
func DefaultConfig() Config {
	return Config{
		Ceiling: DefaultCeiling,
		Window:  DefaultWindow,
		Key:     DefaultKey,
	}
}

// Option configures a Limiter or Retrier
type Option func(*options)

type options struct {
	clock  clockwork.Clock
	logger *slog.Logger
}

// WithClock sets the clock used for every wait
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	o := options{
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Limiter is a fixed-window admission gate over a shared Counter
type Limiter struct {
	counter Counter
	config  Config
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewLimiter creates a limiter. Zero config fields take their defaults.
func NewLimiter(counter Counter, config Config, opts ...Option) *Limiter {
	defaults := DefaultConfig()
	if config.Ceiling <= 0 {
		config.Ceiling = defaults.Ceiling
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	if config.Key == "" {
		config.Key = defaults.Key
	}

	o := buildOptions(opts)
	return &Limiter{
		counter: counter,
		config:  config,
		clock:   o.clock,
		logger:  o.logger,
	}
}

// Config returns the effective configuration
func (l *Limiter) Config() Config {
	return l.config
}

// Acquire admits one call. Over the ceiling it blocks until the current window
// expires. Counter failures are logged and the call is admitted.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	count, ttl, err := l.counter.IncrWithExpiry(ctx, l.config.Key, l.config.Window)
	if err != nil {
		l.logger.Warn("rate limit counter unavailable, admitting call",
			"key", l.config.Key, "error", err)
		return nil
	}

	if count <= int64(l.config.Ceiling) {
		return nil
	}

	if ttl <= 0 || ttl > l.config.Window {
		ttl = l.config.Window
	}

	l.logger.Debug("rate limit reached, waiting for window",
		"key", l.config.Key, "count", count, "ceiling", l.config.Ceiling, "wait", ttl)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.clock.After(ttl):
		return nil
	}
}
