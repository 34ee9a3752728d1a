package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudposse/grant/pkg/schema"
)

func TestExecutor_Execute_Success(t *testing.T) {
	config := schema.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}

	executor := New(config)
	attempts := 0

	fn := func() error {
		attempts++
		if attempts < 2 {
			return errors.New("temporary error")
		}
		return nil
	}

	err := executor.Execute(context.Background(), fn)
	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}

	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestExecutor_Execute_ExhaustionPreservesErrorIdentity(t *testing.T) {
	config := schema.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}

	executor := New(config)
	attempts := 0
	expectedError := errors.New("persistent error")

	fn := func() error {
		attempts++
		return expectedError
	}

	err := executor.Execute(context.Background(), fn)

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}

	// The caller must receive the final attempt's error unchanged.
	if err != expectedError { //nolint:errorlint // identity check is the point
		t.Errorf("Expected the last error unwrapped, got: %v", err)
	}
}

func TestExecutor_Execute_ZeroConfigMeansOneAttempt(t *testing.T) {
	executor := New(schema.RetryConfig{})
	attempts := 0
	expectedError := errors.New("boom")

	err := executor.Execute(context.Background(), func() error {
		attempts++
		return expectedError
	})

	if attempts != 1 {
		t.Errorf("Expected exactly 1 attempt, got %d", attempts)
	}
	if !errors.Is(err, expectedError) {
		t.Errorf("Expected the original error, got: %v", err)
	}
}

func TestExecutor_ExecuteWithPredicate_NoRetryWhenPredicateFalse(t *testing.T) {
	config := schema.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Millisecond,
	}

	executor := New(config)
	attempts := 0
	expectedError := errors.New("not retryable")

	err := executor.ExecuteWithPredicate(context.Background(), func() error {
		attempts++
		return expectedError
	}, func(err error) bool { return false })

	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
	if !errors.Is(err, expectedError) {
		t.Errorf("Expected the original error, got: %v", err)
	}
}

func TestExecutor_Execute_ContextCancelled(t *testing.T) {
	config := schema.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 50 * time.Millisecond,
	}

	executor := New(config)
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := executor.Execute(ctx, func() error {
		attempts++
		return errors.New("always fails")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context cancellation error, got: %v", err)
	}
	if attempts >= 5 {
		t.Errorf("Expected cancellation before exhausting attempts, got %d attempts", attempts)
	}
}

func TestNormalize_InvalidValuesFallBackToDefaults(t *testing.T) {
	c := normalize(schema.RetryConfig{
		MaxAttempts:  -3,
		InitialDelay: -time.Second,
		Multiplier:   0.5,
		JitterFactor: 2.0,
	})

	if c.MaxAttempts != 1 {
		t.Errorf("Expected MaxAttempts 1, got %d", c.MaxAttempts)
	}
	if c.InitialDelay != defaultInitialDelay {
		t.Errorf("Expected default InitialDelay, got %v", c.InitialDelay)
	}
	if c.Multiplier != defaultMultiplier {
		t.Errorf("Expected default Multiplier, got %v", c.Multiplier)
	}
	if c.JitterFactor != defaultJitterFactor {
		t.Errorf("Expected default JitterFactor, got %v", c.JitterFactor)
	}
}

func TestExecutor_ExecuteStream_RestartsWholeSequence(t *testing.T) {
	config := schema.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
	}

	executor := New(config)
	starts := 0
	consumed := 0

	// Each restart consumes the stream from the beginning.
	err := executor.ExecuteStream(context.Background(), func() error {
		starts++
		for i := 0; i < 4; i++ {
			consumed++
			if i == 2 && starts < 3 {
				return errors.New("stream broke mid-sequence")
			}
		}
		return nil
	}, func(err error) bool { return true })
	if err != nil {
		t.Errorf("Expected success after restarts, got: %v", err)
	}

	if starts != 3 {
		t.Errorf("Expected 3 sequence starts, got %d", starts)
	}
	// Two aborted runs consumed 3 items each, the final run consumed 4.
	if consumed != 10 {
		t.Errorf("Expected 10 consumed items, got %d", consumed)
	}
}
