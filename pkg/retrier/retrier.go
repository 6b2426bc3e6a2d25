// Package retrier provides bounded retry loops with pluggable backoff.
package retrier

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultInitialInterval = 1 * time.Second
	defaultMaxInterval     = 30 * time.Second
	defaultMultiplier      = 2.0
	defaultMaxRetries      = 2
	defaultJitter          = 0.0
)

// Backoff selects how the wait between attempts grows.
type Backoff int

const (
	// BackoffExponential multiplies the interval after every attempt.
	BackoffExponential Backoff = iota
	// BackoffLinear waits attempt*initialInterval before attempt N.
	BackoffLinear
	// BackoffConstant waits the same initialInterval before every attempt.
	BackoffConstant
)

// Retrier executes a function until it succeeds or attempts run out.
type Retrier struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	maxRetries      int
	jitter          float64
	backoff         Backoff
	retryIf         func(error) bool
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithInitialInterval sets the base retry interval.
func WithInitialInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.initialInterval = d
	}
}

// WithMaxInterval caps the interval growth.
func WithMaxInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.maxInterval = d
	}
}

// WithMultiplier sets the exponential growth factor.
func WithMultiplier(m float64) Option {
	return func(r *Retrier) {
		r.multiplier = m
	}
}

// WithMaxRetries sets how many retries follow the first attempt.
func WithMaxRetries(n int) Option {
	return func(r *Retrier) {
		r.maxRetries = n
	}
}

// WithJitter sets the jitter factor (0.0 to 1.0).
func WithJitter(j float64) Option {
	return func(r *Retrier) {
		r.jitter = j
	}
}

// WithBackoff selects the backoff strategy.
func WithBackoff(b Backoff) Option {
	return func(r *Retrier) {
		r.backoff = b
	}
}

// WithRetryIf limits retries to errors the predicate accepts. Errors the
// predicate rejects are returned immediately without further attempts.
func WithRetryIf(fn func(error) bool) Option {
	return func(r *Retrier) {
		r.retryIf = fn
	}
}

// New creates a Retrier with defaults overridden by the given options.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		multiplier:      defaultMultiplier,
		maxRetries:      defaultMaxRetries,
		jitter:          defaultJitter,
		backoff:         BackoffExponential,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Do executes fn until it returns nil, the retry budget is spent, the error
// is non-retryable, or ctx is cancelled.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.interval(attempt)):
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if r.retryIf != nil && !r.retryIf(err) {
			return err
		}
	}

	return err
}

func (r *Retrier) interval(attempt int) time.Duration {
	var base time.Duration
	switch r.backoff {
	case BackoffLinear:
		base = time.Duration(attempt) * r.initialInterval
	case BackoffConstant:
		base = r.initialInterval
	default:
		base = r.initialInterval
		for i := 1; i < attempt; i++ {
			base = time.Duration(float64(base) * r.multiplier)
			if base > r.maxInterval {
				break
			}
		}
	}

	if base > r.maxInterval {
		base = r.maxInterval
	}

	if r.jitter > 0 {
		spread := (rand.Float64()*2 - 1) * r.jitter * float64(base)
		base = time.Duration(float64(base) + spread)
		if base < 0 {
			base = 0
		}
	}

	return base
}

// DoWithData executes fn with retries and returns its value.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}
