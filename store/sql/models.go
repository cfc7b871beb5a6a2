package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type webhookConfigRecord struct {
	bun.BaseModel `bun:"table:hook_webhook_configs,alias:hwc"`

	ID                string            `bun:"id,pk"`
	URL               string            `bun:"url,notnull"`
	Method            string            `bun:"method,notnull"`
	Headers           map[string]string `bun:"headers,type:jsonb,notnull"`
	Secret            string            `bun:"secret,notnull"`
	SignatureHeader   string            `bun:"signature_header,notnull"`
	Event             string            `bun:"event,notnull"`
	Condition         string            `bun:"condition_expr,notnull"`
	TimeoutMS         int64             `bun:"timeout_ms,notnull"`
	MaxAttempts       int               `bun:"max_attempts,notnull"`
	InitialDelayMS    int64             `bun:"initial_delay_ms,notnull"`
	MaxDelayMS        int64             `bun:"max_delay_ms,notnull"`
	BackoffMultiplier float64           `bun:"backoff_multiplier,notnull"`
	JitterFactor      float64           `bun:"jitter_factor,notnull"`
	Enabled           bool              `bun:"enabled,notnull"`
	CreatedAt         time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryRecord struct {
	bun.BaseModel `bun:"table:hook_webhook_deliveries,alias:hwd"`

	ID                string            `bun:"id,pk"`
	IdempotencyKey    string            `bun:"idempotency_key,notnull"`
	WebhookID         string            `bun:"webhook_id,notnull"`
	URL               string            `bun:"url,notnull"`
	Method            string            `bun:"method,notnull"`
	Headers           map[string]string `bun:"headers,type:jsonb,notnull"`
	Payload           []byte            `bun:"payload"`
	Status            string            `bun:"status,notnull"`
	Attempts          int               `bun:"attempts,notnull"`
	MaxAttempts       int               `bun:"max_attempts,notnull"`
	InitialDelayMS    int64             `bun:"initial_delay_ms,notnull"`
	MaxDelayMS        int64             `bun:"max_delay_ms,notnull"`
	BackoffMultiplier float64           `bun:"backoff_multiplier,notnull"`
	JitterFactor      float64           `bun:"jitter_factor,notnull"`
	TimeoutMS         int64             `bun:"timeout_ms,notnull"`
	LastAttemptAt     *time.Time        `bun:"last_attempt_at,nullzero"`
	NextRetryAt       *time.Time        `bun:"next_retry_at,nullzero"`
	ResponseStatus    int               `bun:"response_status,notnull"`
	ResponseBody      string            `bun:"response_body,notnull"`
	LastError         string            `bun:"last_error,notnull"`
	DeliveredAt       *time.Time        `bun:"delivered_at,nullzero"`
	Version           int               `bun:"version,notnull"`
	LeaseUntil        *time.Time        `bun:"lease_until,nullzero"`
	CreatedAt         time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
