package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-hookdelivery/core"
)

func newWebhookConfigRecord(cfg core.WebhookConfig, now time.Time) *webhookConfigRecord {
	return &webhookConfigRecord{
		ID:                strings.TrimSpace(cfg.ID),
		URL:               cfg.URL,
		Method:            cfg.Method,
		Headers:           copyStringMap(cfg.Headers),
		Secret:            cfg.Secret,
		SignatureHeader:   cfg.SignatureHeader,
		Event:             cfg.Event,
		Condition:         cfg.Condition,
		TimeoutMS:         cfg.Timeout.Milliseconds(),
		MaxAttempts:       cfg.Retry.MaxAttempts,
		InitialDelayMS:    cfg.Retry.InitialDelay.Milliseconds(),
		MaxDelayMS:        cfg.Retry.MaxDelay.Milliseconds(),
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		JitterFactor:      cfg.Retry.JitterFactor,
		Enabled:           cfg.Enabled,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (r *webhookConfigRecord) toDomain() core.WebhookConfig {
	if r == nil {
		return core.WebhookConfig{}
	}
	return core.WebhookConfig{
		ID:              r.ID,
		URL:             r.URL,
		Method:          r.Method,
		Headers:         copyStringMap(r.Headers),
		Secret:          r.Secret,
		SignatureHeader: r.SignatureHeader,
		Retry:           retryFromColumns(r.MaxAttempts, r.InitialDelayMS, r.MaxDelayMS, r.BackoffMultiplier, r.JitterFactor),
		Enabled:         r.Enabled,
		Event:           r.Event,
		Condition:       r.Condition,
		Timeout:         time.Duration(r.TimeoutMS) * time.Millisecond,
	}
}

func newDeliveryRecord(delivery core.WebhookDelivery) *deliveryRecord {
	return &deliveryRecord{
		ID:                delivery.ID,
		IdempotencyKey:    delivery.IdempotencyKey,
		WebhookID:         delivery.WebhookID,
		URL:               delivery.URL,
		Method:            delivery.Method,
		Headers:           copyStringMap(delivery.Headers),
		Payload:           append([]byte(nil), delivery.Payload...),
		Status:            string(delivery.Status),
		Attempts:          delivery.Attempts,
		MaxAttempts:       delivery.MaxAttempts,
		InitialDelayMS:    delivery.Retry.InitialDelay.Milliseconds(),
		MaxDelayMS:        delivery.Retry.MaxDelay.Milliseconds(),
		BackoffMultiplier: delivery.Retry.BackoffMultiplier,
		JitterFactor:      delivery.Retry.JitterFactor,
		TimeoutMS:         delivery.Timeout.Milliseconds(),
		LastAttemptAt:     utcPointer(delivery.LastAttemptAt),
		NextRetryAt:       utcPointer(delivery.NextRetryAt),
		ResponseStatus:    delivery.ResponseStatus,
		ResponseBody:      delivery.ResponseBody,
		LastError:         delivery.Error,
		DeliveredAt:       utcPointer(delivery.DeliveredAt),
		Version:           delivery.Version,
		CreatedAt:         delivery.CreatedAt.UTC(),
		UpdatedAt:         delivery.UpdatedAt.UTC(),
	}
}

func (r *deliveryRecord) toDomain() core.WebhookDelivery {
	if r == nil {
		return core.WebhookDelivery{}
	}
	return core.WebhookDelivery{
		ID:             r.ID,
		IdempotencyKey: r.IdempotencyKey,
		WebhookID:      r.WebhookID,
		URL:            r.URL,
		Method:         r.Method,
		Headers:        copyStringMap(r.Headers),
		Payload:        append([]byte(nil), r.Payload...),
		Status:         core.DeliveryStatus(r.Status),
		Attempts:       r.Attempts,
		MaxAttempts:    r.MaxAttempts,
		Retry:          retryFromColumns(r.MaxAttempts, r.InitialDelayMS, r.MaxDelayMS, r.BackoffMultiplier, r.JitterFactor),
		Timeout:        time.Duration(r.TimeoutMS) * time.Millisecond,
		LastAttemptAt:  utcPointer(r.LastAttemptAt),
		NextRetryAt:    utcPointer(r.NextRetryAt),
		ResponseStatus: r.ResponseStatus,
		ResponseBody:   r.ResponseBody,
		Error:          r.LastError,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		DeliveredAt:    utcPointer(r.DeliveredAt),
		Version:        r.Version,
	}
}

func retryFromColumns(maxAttempts int, initialMS int64, maxMS int64, multiplier float64, jitter float64) core.RetryConfig {
	return core.RetryConfig{
		MaxAttempts:       maxAttempts,
		InitialDelay:      time.Duration(initialMS) * time.Millisecond,
		MaxDelay:          time.Duration(maxMS) * time.Millisecond,
		BackoffMultiplier: multiplier,
		JitterFactor:      jitter,
	}
}

func copyStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	out := value.UTC()
	return &out
}
