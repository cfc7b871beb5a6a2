package gojob

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-hookdelivery/core"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	DedupPolicyDrop    = "drop"
	DedupPolicyReplace = "replace"

	paramDeliveryID = "delivery_id"
	paramAttempt    = "attempt"
	paramLimit      = "limit"

	defaultErrorDelay = 5 * time.Second
)

// DeliveryRunner is the part of the coordinator the job handler drives.
type DeliveryRunner interface {
	AttemptByID(ctx context.Context, id string) (core.WebhookDelivery, error)
	DispatchDue(ctx context.Context, limit int) (core.DispatchStats, error)
}

// AttemptMessage builds the job that performs the next attempt of record.
// The idempotency key includes the attempt number so a retry is never
// deduplicated against the attempt that scheduled it.
func AttemptMessage(record core.WebhookDelivery) *core.JobExecutionMessage {
	id := strings.TrimSpace(record.ID)
	return &core.JobExecutionMessage{
		JobID:          JobIDAttemptDelivery,
		ScriptPath:     JobIDAttemptDelivery,
		Parameters:     map[string]any{paramDeliveryID: id, paramAttempt: record.Attempts + 1},
		IdempotencyKey: fmt.Sprintf("%s:%s:%d", JobIDAttemptDelivery, id, record.Attempts+1),
		DedupPolicy:    DedupPolicyDrop,
	}
}

// DispatchMessage builds a sweep job. Sweeps sharing a key replace each other.
func DispatchMessage(limit int, key string) *core.JobExecutionMessage {
	params := map[string]any{}
	if limit > 0 {
		params[paramLimit] = limit
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = JobIDDispatchDue
	}
	return &core.JobExecutionMessage{
		JobID:          JobIDDispatchDue,
		ScriptPath:     JobIDDispatchDue,
		Parameters:     params,
		IdempotencyKey: key,
		DedupPolicy:    DedupPolicyReplace,
	}
}

type Scheduler struct {
	enqueuer core.JobEnqueuer
}

func NewScheduler(enqueuer core.JobEnqueuer) (*Scheduler, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("gojob: enqueuer is required")
	}
	return &Scheduler{enqueuer: enqueuer}, nil
}

// ScheduleAttempt enqueues the next attempt for an active delivery.
func (s *Scheduler) ScheduleAttempt(ctx context.Context, record core.WebhookDelivery) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: scheduler is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("gojob: delivery id is required")
	}
	if !record.Status.IsActive() {
		return fmt.Errorf("gojob: delivery %s is %s and cannot be attempted", record.ID, record.Status)
	}
	return s.enqueuer.Enqueue(ctx, AttemptMessage(record))
}

func (s *Scheduler) ScheduleDispatch(ctx context.Context, limit int, key string) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: scheduler is not configured")
	}
	return s.enqueuer.Enqueue(ctx, DispatchMessage(limit, key))
}

type HandlerOption func(*Handler)

func WithHandlerLogger(logger core.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithErrorDelay sets the redelivery delay used when a job fails without a
// delivery outcome, for example when the store is unavailable.
func WithErrorDelay(delay time.Duration) HandlerOption {
	return func(h *Handler) {
		if delay >= 0 {
			h.errorDelay = delay
		}
	}
}

// Handler executes delivery jobs and settles them with the queue.
type Handler struct {
	runner     DeliveryRunner
	logger     core.Logger
	now        func() time.Time
	errorDelay time.Duration
}

func NewHandler(runner DeliveryRunner, opts ...HandlerOption) (*Handler, error) {
	if runner == nil {
		return nil, fmt.Errorf("gojob: delivery runner is required")
	}
	handler := &Handler{
		runner:     runner,
		now:        func() time.Time { return time.Now().UTC() },
		errorDelay: defaultErrorDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	handler.logger = glog.Ensure(handler.logger)
	return handler, nil
}

// Handle runs one job. A delivery that is still RETRYING is nacked with a
// delay matching its NextRetryAt so the queue owns the wait.
func (h *Handler) Handle(ctx context.Context, delivery core.JobDelivery) error {
	if h == nil || h.runner == nil {
		return fmt.Errorf("gojob: handler is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: job delivery is required")
	}
	msg := delivery.Message()
	if msg == nil {
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "missing execution message"})
	}

	switch msg.JobID {
	case JobIDAttemptDelivery:
		return h.handleAttempt(ctx, delivery, msg)
	case JobIDDispatchDue:
		return h.handleDispatch(ctx, delivery, msg)
	default:
		return delivery.Nack(ctx, core.JobNackOptions{
			DeadLetter: true,
			Reason:     "unknown job id " + msg.JobID,
		})
	}
}

func (h *Handler) handleAttempt(ctx context.Context, delivery core.JobDelivery, msg *core.JobExecutionMessage) error {
	id := stringParam(msg.Parameters, paramDeliveryID)
	if id == "" {
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "delivery_id parameter is required"})
	}

	record, err := h.runner.AttemptByID(ctx, id)
	switch {
	case err == nil:
	case core.IsNotFound(err):
		h.logger.Warn("attempt job references unknown delivery", "delivery_id", id)
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: err.Error()})
	case core.IsNotDue(err):
		return h.deferAttempt(ctx, delivery, record)
	case core.IsInvalidTransition(err), core.IsVersionConflict(err):
		// Another worker already settled or advanced the record.
		h.logger.Debug("attempt job superseded", "delivery_id", id, "error", err.Error())
		return delivery.Ack(ctx)
	default:
		h.logger.Error("attempt job failed", "delivery_id", id, "error", err.Error())
		if nackErr := delivery.Nack(ctx, core.JobNackOptions{
			Requeue: true,
			Delay:   h.errorDelay,
			Reason:  err.Error(),
		}); nackErr != nil {
			return nackErr
		}
		return err
	}

	if record.Status == core.DeliveryStatusRetrying {
		delay := time.Duration(0)
		if record.NextRetryAt != nil {
			delay = record.NextRetryAt.Sub(h.now())
		}
		if delay < 0 {
			delay = 0
		}
		h.logger.Info("delivery scheduled for retry",
			"delivery_id", record.ID,
			"attempts", record.Attempts,
			"retry_in_ms", delay.Milliseconds(),
		)
		return delivery.Nack(ctx, core.JobNackOptions{
			Requeue: true,
			Delay:   delay,
			Reason:  record.Error,
		})
	}
	h.logger.Info("delivery attempt settled", "delivery_id", record.ID, "status", string(record.Status))
	return delivery.Ack(ctx)
}

// deferAttempt puts back a job whose record is not due yet, leased by another
// worker, or already settled. Nothing was sent.
func (h *Handler) deferAttempt(ctx context.Context, delivery core.JobDelivery, record core.WebhookDelivery) error {
	if !record.Status.IsActive() {
		h.logger.Debug("attempt job for settled delivery", "delivery_id", record.ID, "status", string(record.Status))
		return delivery.Ack(ctx)
	}
	delay := h.errorDelay
	if record.NextRetryAt != nil {
		if until := record.NextRetryAt.Sub(h.now()); until > 0 {
			delay = until
		}
	}
	h.logger.Debug("attempt job deferred", "delivery_id", record.ID, "retry_in_ms", delay.Milliseconds())
	return delivery.Nack(ctx, core.JobNackOptions{
		Requeue:  true,
		Delay:    delay,
		Deferred: true,
		Reason:   "delivery not due",
	})
}

func (h *Handler) handleDispatch(ctx context.Context, delivery core.JobDelivery, msg *core.JobExecutionMessage) error {
	limit := intParam(msg.Parameters, paramLimit)
	stats, err := h.runner.DispatchDue(ctx, limit)
	if err != nil && stats.Claimed == 0 {
		h.logger.Error("dispatch job failed", "error", err.Error())
		if nackErr := delivery.Nack(ctx, core.JobNackOptions{
			Requeue: true,
			Delay:   h.errorDelay,
			Reason:  err.Error(),
		}); nackErr != nil {
			return nackErr
		}
		return err
	}
	if err != nil {
		// Per-record failures stay on their records; the sweep itself ran.
		h.logger.Warn("dispatch job completed with errors", "claimed", stats.Claimed, "error", err.Error())
	}
	h.logger.Info("dispatch job completed",
		"claimed", stats.Claimed,
		"delivered", stats.Delivered,
		"retried", stats.Retried,
		"failed", stats.Failed,
		"dead_lettered", stats.DeadLettered,
	)
	return delivery.Ack(ctx)
}

// Run dequeues and handles jobs until ctx is cancelled or the dequeuer fails.
func (h *Handler) Run(ctx context.Context, dequeuer core.JobDequeuer) error {
	if dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is required")
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delivery, err := dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if delivery == nil {
			continue
		}
		if err := h.Handle(ctx, delivery); err != nil {
			h.logger.Warn("job handling returned error", "error", err.Error())
		}
	}
}

func stringParam(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if typed, ok := value.(string); ok {
		return strings.TrimSpace(typed)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func intParam(params map[string]any, key string) int {
	switch typed := params[key].(type) {
	case int:
		return typed
	case int64:
		return int(typed)
	case float64:
		return int(typed)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err == nil {
			return parsed
		}
	}
	return 0
}

// LoggingHook reports worker lifecycle events through a logger. Wrap it in
// NewWorkerHook to attach it to a go-job worker.
type LoggingHook struct {
	logger core.Logger
}

func NewLoggingHook(logger core.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(_ context.Context, event core.JobWorkerEvent) {
	h.logger.Debug("job started", eventFields(event)...)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event core.JobWorkerEvent) {
	h.logger.Info("job succeeded", eventFields(event)...)
}

func (h *LoggingHook) OnFailure(_ context.Context, event core.JobWorkerEvent) {
	h.logger.Error("job failed", eventFields(event)...)
}

func (h *LoggingHook) OnRetry(_ context.Context, event core.JobWorkerEvent) {
	h.logger.Warn("job retrying", eventFields(event)...)
}

func eventFields(event core.JobWorkerEvent) []any {
	fields := []any{"attempt", event.Attempt}
	if event.Message != nil {
		fields = append(fields, "job_id", event.Message.JobID)
		if id := stringParam(event.Message.Parameters, paramDeliveryID); id != "" {
			fields = append(fields, "delivery_id", id)
		}
	}
	if event.Delay > 0 {
		fields = append(fields, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Duration > 0 {
		fields = append(fields, "duration_ms", event.Duration.Milliseconds())
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err.Error())
	}
	return fields
}

var (
	_ core.JobWorkerHook = (*LoggingHook)(nil)
	_ DeliveryRunner     = (*core.Coordinator)(nil)
)
