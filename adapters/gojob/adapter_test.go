package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-hookdelivery/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func TestQueueMessageMappingTrimsAndClones(t *testing.T) {
	original := &core.JobExecutionMessage{
		JobID:          " " + JobIDAttemptDelivery + " ",
		ScriptPath:     JobIDAttemptDelivery,
		Parameters:     map[string]any{"delivery_id": "dlv_1", "attempt": 2},
		IdempotencyKey: " hookdelivery.attempt:dlv_1:2 ",
		DedupPolicy:    DedupPolicyDrop,
	}

	queued := toQueueMessage(original)
	if queued.JobID != JobIDAttemptDelivery || queued.IdempotencyKey != "hookdelivery.attempt:dlv_1:2" {
		t.Fatalf("expected trimmed queue message, got %+v", queued)
	}
	if string(queued.DedupPolicy) != DedupPolicyDrop {
		t.Fatalf("expected dedup policy %q, got %q", DedupPolicyDrop, queued.DedupPolicy)
	}
	queued.Parameters["delivery_id"] = "mutated"
	if original.Parameters["delivery_id"] != "dlv_1" {
		t.Fatalf("expected parameters to be copied")
	}

	back := fromQueueMessage(queued)
	if back.JobID != JobIDAttemptDelivery || back.Parameters["attempt"] != 2 {
		t.Fatalf("unexpected core message %+v", back)
	}
	if toQueueMessage(nil) != nil || fromQueueMessage(nil) != nil {
		t.Fatalf("expected nil messages to stay nil")
	}
}

func TestQueueEnqueuerAndDequeuer(t *testing.T) {
	ctx := context.Background()
	enqueuer := &stubQueueEnqueuer{}
	if err := NewQueueEnqueuer(enqueuer).Enqueue(ctx, DispatchMessage(50, "sweep")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDDispatchDue || string(enqueuer.last.DedupPolicy) != DedupPolicyReplace {
		t.Fatalf("expected dispatch job on the queue, got %+v", enqueuer.last)
	}
	if err := NewQueueEnqueuer(enqueuer).Enqueue(ctx, nil); err == nil {
		t.Fatalf("expected nil message to be rejected")
	}
	if err := NewQueueEnqueuer(nil).Enqueue(ctx, DispatchMessage(1, "")); err == nil {
		t.Fatalf("expected unconfigured enqueuer error")
	}

	raw := &stubQueueDelivery{msg: enqueuer.last}
	dequeuer := NewQueueDequeuer(&stubQueueDequeuer{delivery: raw}, AttemptBudget{})
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if got := delivery.Message(); got == nil || got.Parameters["limit"] != 50 {
		t.Fatalf("expected dispatch limit to survive the queue, got %+v", got)
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !raw.acked {
		t.Fatalf("expected ack on underlying delivery")
	}
}

func TestQueueDeliveryNackAppliesAttemptBudget(t *testing.T) {
	ctx := context.Background()
	budget := AttemptBudget{MaxAttempts: 3, MaxDelay: 10 * time.Second}

	early := &stubQueueDelivery{msg: toQueueMessage(AttemptMessage(core.WebhookDelivery{ID: "dlv_1", Attempts: 0}))}
	if err := NewQueueDelivery(early, budget).Nack(ctx, core.JobNackOptions{
		Requeue: true,
		Delay:   30 * time.Second,
		Reason:  " HTTP 503 ",
	}); err != nil {
		t.Fatalf("nack attempt 1: %v", err)
	}
	if !early.nackOpts.Requeue || early.nackOpts.DeadLetter {
		t.Fatalf("expected requeue within budget, got %+v", early.nackOpts)
	}
	if early.nackOpts.Delay != 10*time.Second || early.nackOpts.Reason != "HTTP 503" {
		t.Fatalf("expected clamped delay and trimmed reason, got %+v", early.nackOpts)
	}

	last := &stubQueueDelivery{msg: toQueueMessage(AttemptMessage(core.WebhookDelivery{ID: "dlv_1", Attempts: 2}))}
	if err := NewQueueDelivery(last, budget).Nack(ctx, core.JobNackOptions{Requeue: true, Delay: time.Second}); err != nil {
		t.Fatalf("nack attempt 3: %v", err)
	}
	if last.nackOpts.Requeue || !last.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter once the budget is spent, got %+v", last.nackOpts)
	}
	if last.nackOpts.Reason != "attempt budget of 3 exhausted" {
		t.Fatalf("unexpected reason %q", last.nackOpts.Reason)
	}

	deferred := &stubQueueDelivery{msg: toQueueMessage(AttemptMessage(core.WebhookDelivery{ID: "dlv_1", Attempts: 2}))}
	if err := NewQueueDelivery(deferred, budget).Nack(ctx, core.JobNackOptions{Requeue: true, Deferred: true, Delay: time.Minute}); err != nil {
		t.Fatalf("nack deferred attempt 3: %v", err)
	}
	if !deferred.nackOpts.Requeue || deferred.nackOpts.DeadLetter {
		t.Fatalf("expected deferred job to keep its budget, got %+v", deferred.nackOpts)
	}

	sweep := &stubQueueDelivery{msg: toQueueMessage(DispatchMessage(10, ""))}
	if err := NewQueueDelivery(sweep, budget).Nack(ctx, core.JobNackOptions{Delay: -time.Second}); err != nil {
		t.Fatalf("nack sweep: %v", err)
	}
	if !sweep.nackOpts.Requeue || sweep.nackOpts.Delay != 0 {
		t.Fatalf("expected sweep nack to default to requeue without delay, got %+v", sweep.nackOpts)
	}
}

func TestWorkerHookForwardsEvents(t *testing.T) {
	startedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	coreHook := &capturingHook{}
	hook := NewWorkerHook(coreHook)

	hook.OnRetry(context.Background(), worker.Event{
		Message: &job.ExecutionMessage{
			JobID:          JobIDAttemptDelivery,
			IdempotencyKey: "hookdelivery.attempt:dlv_1:2",
		},
		Attempt:   2,
		Delay:     5 * time.Second,
		Err:       errors.New("retry"),
		StartedAt: startedAt,
		Duration:  250 * time.Millisecond,
	})
	got := coreHook.events["retry"]
	if got.Message == nil || got.Message.JobID != JobIDAttemptDelivery {
		t.Fatalf("expected mapped message, got %+v", got.Message)
	}
	if got.Attempt != 2 || got.Delay != 5*time.Second || got.Duration != 250*time.Millisecond {
		t.Fatalf("unexpected event timing %+v", got)
	}
	if !got.StartedAt.Equal(startedAt) || got.Err == nil || got.Err.Error() != "retry" {
		t.Fatalf("unexpected event %+v", got)
	}

	hook.OnStart(context.Background(), worker.Event{Message: &job.ExecutionMessage{JobID: JobIDDispatchDue}})
	if start := coreHook.events["start"]; start.Message == nil || start.Message.JobID != JobIDDispatchDue {
		t.Fatalf("expected start event message, got %+v", start.Message)
	}
	hook.OnSuccess(context.Background(), worker.Event{})
	hook.OnFailure(context.Background(), worker.Event{})
	if len(coreHook.events) != 4 {
		t.Fatalf("expected all four callbacks forwarded, got %v", coreHook.events)
	}

	var unset *WorkerHook
	unset.OnStart(context.Background(), worker.Event{})
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	s.last = msg
	return nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}

type capturingHook struct {
	events map[string]core.JobWorkerEvent
}

func (h *capturingHook) record(name string, event core.JobWorkerEvent) {
	if h.events == nil {
		h.events = map[string]core.JobWorkerEvent{}
	}
	h.events[name] = event
}

func (h *capturingHook) OnStart(_ context.Context, event core.JobWorkerEvent) {
	h.record("start", event)
}

func (h *capturingHook) OnSuccess(_ context.Context, event core.JobWorkerEvent) {
	h.record("success", event)
}

func (h *capturingHook) OnFailure(_ context.Context, event core.JobWorkerEvent) {
	h.record("failure", event)
}

func (h *capturingHook) OnRetry(_ context.Context, event core.JobWorkerEvent) {
	h.record("retry", event)
}
