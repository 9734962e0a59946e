package retry

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// BackoffConfig contains configuration for exponential backoff
type BackoffConfig struct {
	InitialDelay      time.Duration `json:"initial_delay" validate:"min=10ms,max=10s"`
	MaxDelay          time.Duration `json:"max_delay" validate:"min=100ms,max=5m"`
	Multiplier        float64       `json:"multiplier" validate:"min=1.0,max=10.0"`
	MaxAttempts       int           `json:"max_attempts" validate:"min=1,max=20"`
	PerAttemptTimeout time.Duration `json:"per_attempt_timeout"`
	Jitter            bool          `json:"jitter"`
}

// DefaultBackoffConfig returns a sensible default configuration
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay:      time.Second,
		MaxDelay:          time.Minute,
		Multiplier:        2.0,
		MaxAttempts:       3,
		PerAttemptTimeout: 30 * time.Second,
		Jitter:            false,
	}
}

// Operation is a retryable unit of work. The context passed in is bounded by
// the per-attempt timeout.
type Operation func(ctx context.Context) error

// Executor runs operations with exponential backoff, a per-attempt timeout,
// and a predicate deciding which errors are worth retrying.
type Executor struct {
	config      BackoffConfig
	isRetryable func(error) bool
}

// NewExecutor creates a retry executor. A nil predicate retries every error.
func NewExecutor(config BackoffConfig, isRetryable func(error) bool) *Executor {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = time.Second
	}
	if config.Multiplier < 1.0 {
		config.Multiplier = 2.0
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = time.Minute
	}
	if isRetryable == nil {
		isRetryable = func(error) bool { return true }
	}
	return &Executor{config: config, isRetryable: isRetryable}
}

// Execute runs the operation until it succeeds, a non-retryable error is
// returned, or MaxAttempts is exhausted. Every attempt is individually
// time-boxed; a hung call cannot stall the caller beyond
// MaxAttempts x PerAttemptTimeout plus backoff sleeps.
func (e *Executor) Execute(ctx context.Context, op Operation) error {
	var lastErr error

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := e.runAttempt(ctx, op)
		if err == nil {
			return nil
		}

		lastErr = err

		if !e.isRetryable(err) {
			return err
		}

		if attempt == e.config.MaxAttempts {
			break
		}

		delay := e.calculateDelay(attempt)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

func (e *Executor) runAttempt(ctx context.Context, op Operation) error {
	if e.config.PerAttemptTimeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, e.config.PerAttemptTimeout)
	defer cancel()
	return op(attemptCtx)
}

// calculateDelay computes the delay for the given attempt with exponential
// backoff and optional jitter
func (e *Executor) calculateDelay(attempt int) time.Duration {
	delay := float64(e.config.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= e.config.Multiplier
	}

	if delay > float64(e.config.MaxDelay) {
		delay = float64(e.config.MaxDelay)
	}

	if e.config.Jitter {
		jitter := delay * 0.25
		randomValue := secureFloat64()
		delay += (randomValue - 0.5) * 2 * jitter

		if delay < 0 {
			delay = float64(e.config.InitialDelay)
		}
		if delay > float64(e.config.MaxDelay) {
			delay = float64(e.config.MaxDelay)
		}
	}

	return time.Duration(delay)
}

// GetNextDelay returns the delay that would be used for the given attempt
// (for testing/monitoring)
func (e *Executor) GetNextDelay(attempt int) time.Duration {
	return e.calculateDelay(attempt)
}

// secureFloat64 generates a cryptographically secure float64 between 0 and 1
func secureFloat64() float64 {
	max := big.NewInt(0).SetUint64(math.MaxUint64)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		// Fallback to time-based value if crypto/rand fails
		return float64(time.Now().UnixNano()%1000000) / 1000000.0
	}

	return float64(n.Uint64()) / float64(math.MaxUint64)
}
