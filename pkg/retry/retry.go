// Package retry implements exponential-backoff retry for unary operations and
// for restartable streaming operations.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/cloudposse/grant/pkg/schema"
)

// Func represents a function that can be retried.
type Func func() error

// Predicate decides whether an error is worth another attempt.
type Predicate func(error) bool

// Executor handles the retry logic.
type Executor struct {
	config schema.RetryConfig
	rand   *rand.Rand
}

const (
	defaultInitialDelay   = 100 * time.Millisecond
	defaultMaxDelay       = 5 * time.Second
	defaultMultiplier     = 2.0
	defaultJitterFactor   = 0.1
	defaultMaxElapsedTime = 30 * time.Minute
)

// DefaultConfig returns a sensible default configuration: a single attempt
// with exponential backoff parameters ready for callers that raise
// MaxAttempts.
func DefaultConfig() schema.RetryConfig {
	return schema.RetryConfig{
		MaxAttempts:    1,
		InitialDelay:   defaultInitialDelay,
		MaxDelay:       defaultMaxDelay,
		Multiplier:     defaultMultiplier,
		JitterFactor:   defaultJitterFactor,
		MaxElapsedTime: defaultMaxElapsedTime,
	}
}

// New creates a new retry executor with the given config. Invalid option
// values fall back to defaults rather than erroring.
func New(config schema.RetryConfig) *Executor {
	return &Executor{
		config: normalize(config),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func normalize(c schema.RetryConfig) schema.RetryConfig {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = defaultInitialDelay
	}
	if c.Multiplier < 1.0 {
		c.Multiplier = defaultMultiplier
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		c.JitterFactor = defaultJitterFactor
	}
	if c.MaxElapsedTime <= 0 {
		c.MaxElapsedTime = defaultMaxElapsedTime
	}
	return c
}

// Execute runs the function, retrying on any error.
func (e *Executor) Execute(ctx context.Context, fn Func) error {
	return e.ExecuteWithPredicate(ctx, fn, func(err error) bool {
		return true
	})
}

// ExecuteWithPredicate runs the function until it succeeds, shouldRetry
// returns false, or attempts are exhausted. The last error is returned
// unwrapped so callers can match on its identity.
func (e *Executor) ExecuteWithPredicate(ctx context.Context, fn Func, shouldRetry Predicate) error {
	startTime := time.Now()

	var lastErr error
	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		if attempt > 1 && time.Since(startTime) > e.config.MaxElapsedTime {
			return lastErr
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return err
		}
		if attempt == e.config.MaxAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.delay(attempt)):
		}
	}
	return lastErr
}

// ExecuteStream runs a streaming operation with the same retry budget. A
// failure mid-sequence restarts the entire sequence from the beginning; there
// are no resume-from-checkpoint semantics. Implemented as an explicit loop so
// stack depth stays bounded no matter how many restarts occur.
func (e *Executor) ExecuteStream(ctx context.Context, fn Func, shouldRetry Predicate) error {
	return e.ExecuteWithPredicate(ctx, fn, shouldRetry)
}

// delay calculates the backoff delay for the next attempt, with optional
// jitter, capped at MaxDelay.
func (e *Executor) delay(attempt int) time.Duration {
	d := time.Duration(float64(e.config.InitialDelay) * math.Pow(e.config.Multiplier, float64(attempt-1)))
	if d > e.config.MaxDelay {
		d = e.config.MaxDelay
	}

	if e.config.JitterFactor > 0 {
		jitter := time.Duration(e.rand.Float64() * float64(d) * e.config.JitterFactor)
		if e.rand.Float64() < 0.5 {
			d += jitter
		} else {
			d -= jitter
		}
		if d < 0 {
			d = 0
		}
	}

	return d
}

// Do is a convenience function that creates an executor and runs the function.
func Do(ctx context.Context, config *schema.RetryConfig, fn Func) error {
	if config == nil {
		temp := DefaultConfig()
		config = &temp
	}
	return New(*config).Execute(ctx, fn)
}

// WithPredicate creates an executor and runs the function, retrying only when
// shouldRetry approves the error.
func WithPredicate(ctx context.Context, config *schema.RetryConfig, fn Func, shouldRetry Predicate) error {
	if config == nil {
		temp := DefaultConfig()
		config = &temp
	}
	return New(*config).ExecuteWithPredicate(ctx, fn, shouldRetry)
}
