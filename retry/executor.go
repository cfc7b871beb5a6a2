package retry

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Sleeper waits for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// RetryHook observes a failed attempt that is about to be retried.
type RetryHook func(attempt int, err error, delay time.Duration)

type execConfig struct {
	retryable  func(error) bool
	onRetry    RetryHook
	calculator *Calculator
	sleep      Sleeper
}

type ExecOption func(*execConfig)

func WithRetryable(classifier func(error) bool) ExecOption {
	return func(c *execConfig) {
		c.retryable = classifier
	}
}

func WithOnRetry(hook RetryHook) ExecOption {
	return func(c *execConfig) {
		c.onRetry = hook
	}
}

func WithCalculator(calculator *Calculator) ExecOption {
	return func(c *execConfig) {
		c.calculator = calculator
	}
}

func WithSleeper(sleeper Sleeper) ExecOption {
	return func(c *execConfig) {
		c.sleep = sleeper
	}
}

// ContextSleep blocks the calling goroutine for d unless ctx is cancelled.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ExecuteWithRetry runs fn up to policy.MaxAttempts times. It stops on the
// first success, on a non-retryable error, or once attempts are exhausted,
// returning the last error annotated with the attempt count.
func ExecuteWithRetry[T any](
	ctx context.Context,
	fn func(ctx context.Context) (T, error),
	policy Policy,
	opts ...ExecOption,
) (T, error) {
	var zero T
	if fn == nil {
		return zero, goerrors.New("retry: operation is required", goerrors.CategoryBadInput)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := execConfig{
		retryable: IsRetryableError,
		sleep:     ContextSleep,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.retryable == nil {
		cfg.retryable = IsRetryableError
	}
	if cfg.sleep == nil {
		cfg.sleep = ContextSleep
	}
	if cfg.calculator == nil {
		cfg.calculator = DefaultCalculator()
	}
	policy = policy.Normalize()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attemptError(err, attempt-1, lastErr)
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !cfg.retryable(err) || attempt == policy.MaxAttempts {
			return zero, attemptError(err, attempt, nil)
		}
		delay := cfg.calculator.Delay(attempt, policy)
		if cfg.onRetry != nil {
			cfg.onRetry(attempt, err, delay)
		}
		if sleepErr := cfg.sleep(ctx, delay); sleepErr != nil {
			return zero, attemptError(sleepErr, attempt, lastErr)
		}
	}
	return zero, attemptError(lastErr, policy.MaxAttempts, nil)
}

// ExecuteWithRetryOrZero is ExecuteWithRetry for callers that only care
// whether a value was produced.
func ExecuteWithRetryOrZero[T any](
	ctx context.Context,
	fn func(ctx context.Context) (T, error),
	policy Policy,
	opts ...ExecOption,
) (T, bool) {
	result, err := ExecuteWithRetry(ctx, fn, policy, opts...)
	if err != nil {
		var zero T
		return zero, false
	}
	return result, true
}

func attemptError(err error, attempts int, last error) error {
	if err == nil {
		return nil
	}
	metadata := map[string]any{"attempts": attempts}
	if last != nil {
		metadata["last_error"] = last.Error()
	}
	category := goerrors.CategoryOperation
	if IsRetryableError(err) {
		category = goerrors.CategoryExternal
	}
	return goerrors.Wrap(err, category, fmt.Sprintf("retry: failed after %d attempt(s)", attempts)).
		WithMetadata(metadata)
}
