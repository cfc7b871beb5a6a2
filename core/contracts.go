package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Truncated  bool
	Duration   time.Duration
}

// Transport performs one HTTP exchange. A non-2xx status is not an error;
// errors are reserved for requests that produced no response.
type Transport interface {
	Send(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// DeliveryStore persists delivery records. Implementations must make
// CreateOrGet atomic per idempotency key and Save conditional on Version.
type DeliveryStore interface {
	// CreateOrGet inserts record unless its idempotency key already exists,
	// in which case the existing record is returned with existed=true.
	CreateOrGet(ctx context.Context, record WebhookDelivery) (stored WebhookDelivery, existed bool, err error)
	Get(ctx context.Context, id string) (WebhookDelivery, error)
	GetByIdempotencyKey(ctx context.Context, key string) (WebhookDelivery, error)
	// Save writes record when the stored version equals record.Version and
	// returns it with the incremented version. It releases any claim lease.
	Save(ctx context.Context, record WebhookDelivery) (WebhookDelivery, error)
	// ClaimDue leases up to limit due records so no other worker picks them
	// up until the lease expires or the record is saved.
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]WebhookDelivery, error)
	// Claim leases the single record id when it is due at now and not leased
	// by another worker. Otherwise it returns the stored record with a
	// NotDueError.
	Claim(ctx context.Context, id string, now time.Time, lease time.Duration) (WebhookDelivery, error)
	List(ctx context.Context, filter DeliveryFilter) ([]WebhookDelivery, error)
}

type ConfigStore interface {
	Get(ctx context.Context, id string) (WebhookConfig, error)
	Upsert(ctx context.Context, cfg WebhookConfig) (WebhookConfig, error)
	ListByEvent(ctx context.Context, event string) ([]WebhookConfig, error)
	Delete(ctx context.Context, id string) error
}

type StoreProvider interface {
	DeliveryStore() DeliveryStore
	ConfigStore() ConfigStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// ConditionEvaluator decides whether a payload should be delivered to an
// endpoint with the given condition expression.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, condition string, env map[string]any) (bool, error)
}

// ConditionCompiler is implemented by evaluators that can reject a malformed
// condition before any payload is seen.
type ConditionCompiler interface {
	Compile(condition string) error
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
	// Deferred marks a job that was put back without attempting anything, so
	// queue-side attempt budgets must not count it.
	Deferred bool
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// DeliveryService is the surface exposed to command and query handlers.
type DeliveryService interface {
	Enqueue(ctx context.Context, cfg WebhookConfig, payload []byte, idempotencyKey string) (WebhookDelivery, error)
	EnqueueForWebhook(ctx context.Context, webhookID string, payload []byte, idempotencyKey string) (WebhookDelivery, error)
	EnqueueEvent(ctx context.Context, event string, payload []byte, idempotencyKey string) ([]WebhookDelivery, error)
	Deliver(ctx context.Context, cfg WebhookConfig, payload []byte, idempotencyKey string) (WebhookDelivery, error)
	AttemptByID(ctx context.Context, id string) (WebhookDelivery, error)
	DispatchDue(ctx context.Context, limit int) (DispatchStats, error)
	Reset(ctx context.Context, id string) (WebhookDelivery, error)
	Abandon(ctx context.Context, id string, reason string) (WebhookDelivery, error)
	Get(ctx context.Context, id string) (WebhookDelivery, error)
	List(ctx context.Context, filter DeliveryFilter) ([]WebhookDelivery, error)
	Stats(ctx context.Context, filter DeliveryFilter) (WebhookStats, error)
	RegisterWebhook(ctx context.Context, cfg WebhookConfig) (WebhookConfig, error)
	RemoveWebhook(ctx context.Context, id string) error
}
