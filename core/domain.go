package core

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hookdelivery/retry"
	"github.com/goliatone/go-hookdelivery/signing"
)

type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "PENDING"
	DeliveryStatusRetrying   DeliveryStatus = "RETRYING"
	DeliveryStatusDelivered  DeliveryStatus = "DELIVERED"
	DeliveryStatusFailed     DeliveryStatus = "FAILED"
	DeliveryStatusDeadLetter DeliveryStatus = "DEAD_LETTER"
)

func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	status := DeliveryStatus(strings.ToUpper(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", newDeliveryError(
			"core: unknown delivery status "+strings.TrimSpace(value),
			goerrors.CategoryBadInput,
			DeliveryErrorBadInput,
		)
	}
	return status, nil
}

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending,
		DeliveryStatusRetrying,
		DeliveryStatusDelivered,
		DeliveryStatusFailed,
		DeliveryStatusDeadLetter:
		return true
	default:
		return false
	}
}

// IsActive reports whether a record in this status can still be attempted.
func (s DeliveryStatus) IsActive() bool {
	return s == DeliveryStatusPending || s == DeliveryStatusRetrying
}

func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusFailed || s == DeliveryStatusDeadLetter
}

// IsFailure reports FAILED and DEAD_LETTER, the states Reset may leave.
func (s DeliveryStatus) IsFailure() bool {
	return s == DeliveryStatusFailed || s == DeliveryStatusDeadLetter
}

const (
	MethodPost  = http.MethodPost
	MethodPut   = http.MethodPut
	MethodPatch = http.MethodPatch
)

func normalizeMethod(method string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return MethodPost
	}
	return method
}

func validMethod(method string) bool {
	switch method {
	case MethodPost, MethodPut, MethodPatch:
		return true
	default:
		return false
	}
}

type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts" koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay" koanf:"initial_delay" mapstructure:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay" koanf:"max_delay" mapstructure:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier" koanf:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	JitterFactor      float64       `json:"jitter_factor" koanf:"jitter_factor" mapstructure:"jitter_factor"`
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       retry.DefaultMaxAttempts,
		InitialDelay:      retry.DefaultInitialDelay,
		MaxDelay:          retry.DefaultMaxDelay,
		BackoffMultiplier: retry.DefaultBackoffMultiplier,
		JitterFactor:      retry.DefaultJitterFactor,
	}
}

func (c RetryConfig) IsZero() bool {
	return c == RetryConfig{}
}

// WithDefaults replaces a zero config with fallback and fills unset
// attempts, max delay and multiplier. An explicit zero jitter is kept.
func (c RetryConfig) WithDefaults(fallback RetryConfig) RetryConfig {
	if c.IsZero() {
		return fallback
	}
	out := c
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = fallback.MaxAttempts
	}
	if out.BackoffMultiplier == 0 {
		out.BackoffMultiplier = fallback.BackoffMultiplier
	}
	if out.MaxDelay == 0 {
		out.MaxDelay = fallback.MaxDelay
		if out.MaxDelay < out.InitialDelay {
			out.MaxDelay = out.InitialDelay
		}
	}
	return out
}

func (c RetryConfig) Validate() error {
	fields := []goerrors.FieldError{}
	if c.MaxAttempts < 1 {
		fields = append(fields, goerrors.FieldError{Field: "retry.max_attempts", Message: "must be >= 1"})
	}
	if c.InitialDelay < 0 {
		fields = append(fields, goerrors.FieldError{Field: "retry.initial_delay", Message: "must be >= 0"})
	}
	if c.MaxDelay < c.InitialDelay {
		fields = append(fields, goerrors.FieldError{Field: "retry.max_delay", Message: "must be >= initial_delay"})
	}
	if c.BackoffMultiplier < 1 {
		fields = append(fields, goerrors.FieldError{Field: "retry.backoff_multiplier", Message: "must be >= 1"})
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		fields = append(fields, goerrors.FieldError{Field: "retry.jitter_factor", Message: "must be within [0, 1]"})
	}
	if len(fields) == 0 {
		return nil
	}
	return validationError("core: invalid retry config", fields...)
}

func (c RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:       c.MaxAttempts,
		InitialDelay:      c.InitialDelay,
		MaxDelay:          c.MaxDelay,
		BackoffMultiplier: c.BackoffMultiplier,
		JitterFactor:      c.JitterFactor,
	}
}

// WebhookConfig is the caller-owned description of one endpoint.
type WebhookConfig struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Headers         map[string]string `json:"headers,omitempty"`
	Secret          string            `json:"secret,omitempty"`
	SignatureHeader string            `json:"signature_header,omitempty"`
	Retry           RetryConfig       `json:"retry"`
	Enabled         bool              `json:"enabled"`
	// Event names the lifecycle event this endpoint listens to.
	Event string `json:"event,omitempty"`
	// Condition is an optional boolean expression over the payload; empty
	// means always deliver.
	Condition string        `json:"condition,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
}

func (c WebhookConfig) Normalized(fallback RetryConfig) WebhookConfig {
	out := c
	out.ID = strings.TrimSpace(c.ID)
	out.URL = strings.TrimSpace(c.URL)
	out.Method = normalizeMethod(c.Method)
	out.SignatureHeader = strings.TrimSpace(c.SignatureHeader)
	if out.SignatureHeader == "" {
		out.SignatureHeader = signing.DefaultSignatureHeader
	}
	out.Event = strings.TrimSpace(c.Event)
	out.Condition = strings.TrimSpace(c.Condition)
	out.Headers = copyStringMap(c.Headers)
	out.Retry = c.Retry.WithDefaults(fallback)
	return out
}

func (c WebhookConfig) Validate() error {
	fields := []goerrors.FieldError{}
	if strings.TrimSpace(c.ID) == "" {
		fields = append(fields, goerrors.FieldError{Field: "id", Message: "is required"})
	}
	if msg := validateEndpointURL(c.URL); msg != "" {
		fields = append(fields, goerrors.FieldError{Field: "url", Message: msg})
	}
	if !validMethod(normalizeMethod(c.Method)) {
		fields = append(fields, goerrors.FieldError{Field: "method", Message: "must be one of POST, PUT, PATCH"})
	}
	if c.Timeout < 0 {
		fields = append(fields, goerrors.FieldError{Field: "timeout", Message: "must be >= 0"})
	}
	if err := c.Retry.Validate(); err != nil {
		var rich *goerrors.Error
		if goerrors.As(err, &rich) {
			fields = append(fields, rich.ValidationErrors...)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return validationError("core: invalid webhook config", fields...)
}

func validateEndpointURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "is required"
	}
	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return "must be an absolute url"
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return ""
	default:
		return "scheme must be http or https"
	}
}

// WebhookDelivery is the persisted record of one logical notification.
type WebhookDelivery struct {
	ID             string
	IdempotencyKey string
	WebhookID      string
	URL            string
	Method         string
	Headers        map[string]string
	Payload        []byte
	Status         DeliveryStatus
	Attempts       int
	MaxAttempts    int
	Retry          RetryConfig
	Timeout        time.Duration
	LastAttemptAt  *time.Time
	NextRetryAt    *time.Time
	ResponseStatus int
	ResponseBody   string
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeliveredAt    *time.Time
	Version        int
}

func (d WebhookDelivery) Clone() WebhookDelivery {
	out := d
	out.Headers = copyStringMap(d.Headers)
	out.Payload = append([]byte(nil), d.Payload...)
	out.LastAttemptAt = cloneTime(d.LastAttemptAt)
	out.NextRetryAt = cloneTime(d.NextRetryAt)
	out.DeliveredAt = cloneTime(d.DeliveredAt)
	return out
}

// IsDue reports whether an active record may be attempted at now.
func (d WebhookDelivery) IsDue(now time.Time) bool {
	if !d.Status.IsActive() {
		return false
	}
	return d.NextRetryAt == nil || !d.NextRetryAt.After(now)
}

type WebhookBreakdown struct {
	Total     int `json:"total"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

type WebhookStats struct {
	Total      int                         `json:"total"`
	Pending    int                         `json:"pending"`
	Delivered  int                         `json:"delivered"`
	Failed     int                         `json:"failed"`
	Retrying   int                         `json:"retrying"`
	DeadLetter int                         `json:"dead_letter"`
	ByWebhook  map[string]WebhookBreakdown `json:"by_webhook"`
}

type DeliveryFilter struct {
	Status    DeliveryStatus
	WebhookID string
	Limit     int
}

func (f DeliveryFilter) Validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return validationError("core: invalid delivery filter", goerrors.FieldError{
			Field:   "status",
			Message: "unknown delivery status",
		})
	}
	if f.Limit < 0 {
		return validationError("core: invalid delivery filter", goerrors.FieldError{
			Field:   "limit",
			Message: "must be >= 0",
		})
	}
	return nil
}

type DispatchStats struct {
	Claimed      int
	Delivered    int
	Retried      int
	Failed       int
	DeadLettered int
}

func copyStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := value.UTC()
	return &copied
}
