package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hookdelivery/retry"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/robfig/cron/v3"
)

// DueDispatcher is the part of the coordinator a runner drives.
type DueDispatcher interface {
	DispatchDue(ctx context.Context, limit int) (DispatchStats, error)
}

type RunnerConfig struct {
	Schedule  string
	BatchSize int
	// ClaimRetry bounds how often one tick retries a batch that failed before
	// claiming anything. A zero policy uses three attempts 1s apart, doubling.
	ClaimRetry retry.Policy
}

func defaultClaimRetry() retry.Policy {
	return retry.Policy{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          4 * time.Second,
		BackoffMultiplier: 2,
	}
}

// DispatchRunner polls for due deliveries on a cron schedule.
type DispatchRunner struct {
	dispatcher DueDispatcher
	schedule   cron.Schedule
	config     RunnerConfig
	logger     Logger
	now        func() time.Time
	sleep      retry.Sleeper
}

type RunnerOption func(*DispatchRunner)

func WithRunnerLogger(logger Logger) RunnerOption {
	return func(r *DispatchRunner) {
		r.logger = logger
	}
}

func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *DispatchRunner) {
		if now != nil {
			r.now = now
		}
	}
}

func WithRunnerSleeper(sleep retry.Sleeper) RunnerOption {
	return func(r *DispatchRunner) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

func NewDispatchRunner(dispatcher DueDispatcher, config RunnerConfig, opts ...RunnerOption) (*DispatchRunner, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("core: dispatch runner requires a dispatcher")
	}
	config.Schedule = strings.TrimSpace(config.Schedule)
	if config.Schedule == "" {
		config.Schedule = defaultDispatchSchedule
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultDispatchBatchSize
	}
	if config.ClaimRetry == (retry.Policy{}) {
		config.ClaimRetry = defaultClaimRetry()
	}
	schedule, err := cron.ParseStandard(config.Schedule)
	if err != nil {
		return nil, validationError("core: invalid dispatch schedule", goerrors.FieldError{
			Field:   "dispatch.schedule",
			Message: err.Error(),
		})
	}
	runner := &DispatchRunner{
		dispatcher: dispatcher,
		schedule:   schedule,
		config:     config,
		logger:     glog.Nop(),
		now: func() time.Time {
			return time.Now().UTC()
		},
		sleep: retry.ContextSleep,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(runner)
		}
	}
	runner.logger = glog.Ensure(runner.logger)
	return runner, nil
}

// NewCoordinatorRunner builds a runner from the coordinator's dispatch config.
func NewCoordinatorRunner(coordinator *Coordinator, opts ...RunnerOption) (*DispatchRunner, error) {
	if coordinator == nil {
		return nil, fmt.Errorf("core: dispatch runner requires a coordinator")
	}
	cfg := coordinator.Config()
	opts = append([]RunnerOption{WithRunnerLogger(coordinator.logger), WithRunnerClock(coordinator.now)}, opts...)
	return NewDispatchRunner(coordinator, RunnerConfig{
		Schedule:  cfg.Dispatch.Schedule,
		BatchSize: cfg.Dispatch.BatchSize,
	}, opts...)
}

// RunOnce dispatches one batch. A batch that fails before claiming anything
// (the store is unreachable) is retried under ClaimRetry; errors from
// individual attempts are returned as they are, since those records are
// already settled or will be re-claimed.
func (r *DispatchRunner) RunOnce(ctx context.Context) (DispatchStats, error) {
	if r == nil || r.dispatcher == nil {
		return DispatchStats{}, fmt.Errorf("core: dispatch runner is not configured")
	}
	var batchErr error
	stats, err := retry.ExecuteWithRetry(ctx, func(ctx context.Context) (DispatchStats, error) {
		stats, err := r.dispatcher.DispatchDue(ctx, r.config.BatchSize)
		if err != nil && stats.Claimed == 0 {
			return stats, err
		}
		batchErr = err
		return stats, nil
	}, r.config.ClaimRetry,
		retry.WithRetryable(isClaimRetryable),
		retry.WithSleeper(r.sleep),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			r.logger.Warn("dispatch claim failed, retrying",
				"attempt", attempt,
				"retry_in_ms", delay.Milliseconds(),
				"error", err,
			)
		}),
	)
	if err != nil {
		return DispatchStats{}, err
	}
	return stats, batchErr
}

// isClaimRetryable treats a failed claim as store I/O unless the coordinator
// is misconfigured or the caller gave up.
func isClaimRetryable(err error) bool {
	if goerrors.Is(err, context.Canceled) {
		return false
	}
	switch {
	case hasTextCode(err, DeliveryErrorStoreNotConfigured), hasTextCode(err, DeliveryErrorBadInput):
		return false
	}
	return true
}

// Run dispatches at every schedule tick until ctx is done. Batch errors are
// logged and do not stop the loop.
func (r *DispatchRunner) Run(ctx context.Context) error {
	if r == nil || r.dispatcher == nil {
		return fmt.Errorf("core: dispatch runner is not configured")
	}
	for {
		now := r.now()
		wait := r.schedule.Next(now).Sub(now)
		if wait < 0 {
			wait = 0
		}
		if err := r.sleep(ctx, wait); err != nil {
			return nil
		}

		stats, err := r.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("dispatch tick failed", "error", err, "claimed", stats.Claimed)
			continue
		}
		if stats.Claimed > 0 {
			r.logger.Debug("dispatch tick completed",
				"claimed", stats.Claimed,
				"delivered", stats.Delivered,
				"retried", stats.Retried,
				"failed", stats.Failed,
				"dead_lettered", stats.DeadLettered,
			)
		}
	}
}
