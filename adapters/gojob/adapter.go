package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-hookdelivery/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDAttemptDelivery = "hookdelivery.attempt"
	JobIDDispatchDue     = "hookdelivery.dispatch_due"
)

// AttemptBudget caps queue redelivery of attempt jobs. The attempt number is
// read from the job's "attempt" parameter; jobs without one are never
// dead-lettered by the budget.
type AttemptBudget struct {
	MaxAttempts int
	MaxDelay    time.Duration
}

// Settle turns the handler's nack request into the options sent to the queue.
// A clamped delay only brings the job back early: the handler re-checks the
// record and defers it again until it is due.
func (b AttemptBudget) Settle(opts core.JobNackOptions, attempt int) queue.NackOptions {
	out := queue.NackOptions{
		Delay:      max(opts.Delay, 0),
		Requeue:    opts.Requeue && !opts.DeadLetter,
		DeadLetter: opts.DeadLetter,
		Reason:     strings.TrimSpace(opts.Reason),
	}
	if b.MaxDelay > 0 {
		out.Delay = min(out.Delay, b.MaxDelay)
	}
	if out.Requeue && !opts.Deferred && b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
		out.Requeue = false
		out.DeadLetter = true
		if out.Reason == "" {
			out.Reason = fmt.Sprintf("attempt budget of %d exhausted", b.MaxAttempts)
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

func toQueueMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func fromQueueMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// QueueEnqueuer publishes delivery jobs on a go-job queue.
type QueueEnqueuer struct {
	enqueuer queue.Enqueuer
}

func NewQueueEnqueuer(enqueuer queue.Enqueuer) *QueueEnqueuer {
	return &QueueEnqueuer{enqueuer: enqueuer}
}

func (q *QueueEnqueuer) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	switch {
	case q == nil || q.enqueuer == nil:
		return fmt.Errorf("gojob: queue enqueuer is not configured")
	case msg == nil:
		return fmt.Errorf("gojob: execution message is required")
	}
	return q.enqueuer.Enqueue(ctx, toQueueMessage(msg))
}

// QueueDelivery is one dequeued go-job message seen as a core.JobDelivery.
type QueueDelivery struct {
	delivery queue.Delivery
	budget   AttemptBudget
}

func NewQueueDelivery(delivery queue.Delivery, budget AttemptBudget) *QueueDelivery {
	return &QueueDelivery{delivery: delivery, budget: budget}
}

func (d *QueueDelivery) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return fromQueueMessage(d.delivery.Message())
}

func (d *QueueDelivery) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: queue delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *QueueDelivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: queue delivery is not configured")
	}
	attempt := 0
	if msg := d.delivery.Message(); msg != nil {
		attempt = intParam(msg.Parameters, paramAttempt)
	}
	return d.delivery.Nack(ctx, d.budget.Settle(opts, attempt))
}

// QueueDequeuer wraps each dequeued message in a QueueDelivery sharing one
// attempt budget.
type QueueDequeuer struct {
	dequeuer queue.Dequeuer
	budget   AttemptBudget
}

func NewQueueDequeuer(dequeuer queue.Dequeuer, budget AttemptBudget) *QueueDequeuer {
	return &QueueDequeuer{dequeuer: dequeuer, budget: budget}
}

func (q *QueueDequeuer) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if q == nil || q.dequeuer == nil {
		return nil, fmt.Errorf("gojob: queue dequeuer is not configured")
	}
	delivery, err := q.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return NewQueueDelivery(delivery, q.budget), nil
}

// WorkerHook forwards go-job worker events to a core.JobWorkerHook.
type WorkerHook struct {
	hook core.JobWorkerHook
}

func NewWorkerHook(hook core.JobWorkerHook) *WorkerHook {
	return &WorkerHook{hook: hook}
}

func (w *WorkerHook) OnStart(ctx context.Context, event worker.Event) {
	w.forward(ctx, event, core.JobWorkerHook.OnStart)
}

func (w *WorkerHook) OnSuccess(ctx context.Context, event worker.Event) {
	w.forward(ctx, event, core.JobWorkerHook.OnSuccess)
}

func (w *WorkerHook) OnFailure(ctx context.Context, event worker.Event) {
	w.forward(ctx, event, core.JobWorkerHook.OnFailure)
}

func (w *WorkerHook) OnRetry(ctx context.Context, event worker.Event) {
	w.forward(ctx, event, core.JobWorkerHook.OnRetry)
}

func (w *WorkerHook) forward(
	ctx context.Context,
	event worker.Event,
	call func(core.JobWorkerHook, context.Context, core.JobWorkerEvent),
) {
	if w == nil || w.hook == nil {
		return
	}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	call(w.hook, ctx, core.JobWorkerEvent{
		Message:   fromQueueMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	})
}

func cloneParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer = (*QueueEnqueuer)(nil)
	_ core.JobDelivery = (*QueueDelivery)(nil)
	_ core.JobDequeuer = (*QueueDequeuer)(nil)
	_ worker.Hook      = (*WorkerHook)(nil)
)
