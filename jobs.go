package hookdelivery

import (
	"context"
	"fmt"

	"github.com/goliatone/go-hookdelivery/adapters/gojob"
	"github.com/goliatone/go-hookdelivery/adapters/gologger"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

// JobRuntime holds the go-job pieces that drive a coordinator from a queue:
// a scheduler for attempt and sweep jobs, the handler that runs them, and
// the hook and loggers to hand to a go-job worker.
type JobRuntime struct {
	Scheduler         *gojob.Scheduler
	Handler           *gojob.Handler
	WorkerHook        worker.Hook
	JobLogger         job.Logger
	JobLoggerProvider job.LoggerProvider
}

func NewJobRuntime(
	coordinator *Coordinator,
	enqueuer queue.Enqueuer,
	provider glog.LoggerProvider,
	logger glog.Logger,
	opts ...gojob.HandlerOption,
) (*JobRuntime, error) {
	if coordinator == nil {
		return nil, fmt.Errorf("hookdelivery: coordinator is required")
	}
	if enqueuer == nil {
		return nil, fmt.Errorf("hookdelivery: job enqueuer is required")
	}
	_, resolvedLogger, jobProvider, jobLogger := gologger.ResolveForJob(gologger.JobsLoggerName, provider, logger)

	scheduler, err := gojob.NewScheduler(gojob.NewQueueEnqueuer(enqueuer))
	if err != nil {
		return nil, err
	}
	handlerOpts := append([]gojob.HandlerOption{gojob.WithHandlerLogger(resolvedLogger)}, opts...)
	handler, err := gojob.NewHandler(coordinator, handlerOpts...)
	if err != nil {
		return nil, err
	}
	return &JobRuntime{
		Scheduler:         scheduler,
		Handler:           handler,
		WorkerHook:        gojob.NewWorkerHook(gojob.NewLoggingHook(resolvedLogger)),
		JobLogger:         jobLogger,
		JobLoggerProvider: jobProvider,
	}, nil
}

// Consume handles jobs from dequeuer until ctx is cancelled. Requeues are
// bounded by budget.
func (r *JobRuntime) Consume(ctx context.Context, dequeuer queue.Dequeuer, budget gojob.AttemptBudget) error {
	if r == nil || r.Handler == nil {
		return fmt.Errorf("hookdelivery: job runtime is not configured")
	}
	if dequeuer == nil {
		return fmt.Errorf("hookdelivery: job dequeuer is required")
	}
	return r.Handler.Run(ctx, gojob.NewQueueDequeuer(dequeuer, budget))
}
