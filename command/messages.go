package command

import (
	"strings"

	"github.com/goliatone/go-hookdelivery/core"
)

const (
	TypeEnqueue           = "hookdelivery.command.enqueue"
	TypeEnqueueForWebhook = "hookdelivery.command.enqueue_for_webhook"
	TypeEnqueueEvent      = "hookdelivery.command.enqueue_event"
	TypeDeliver           = "hookdelivery.command.deliver"
	TypeAttempt           = "hookdelivery.command.attempt"
	TypeDispatchDue       = "hookdelivery.command.dispatch_due"
	TypeReset             = "hookdelivery.command.reset"
	TypeAbandon           = "hookdelivery.command.abandon"
	TypeRegisterWebhook   = "hookdelivery.command.webhook.register"
	TypeRemoveWebhook     = "hookdelivery.command.webhook.remove"
)

type EnqueueMessage struct {
	Config         core.WebhookConfig
	Payload        []byte
	IdempotencyKey string
}

func (EnqueueMessage) Type() string { return TypeEnqueue }

func (m EnqueueMessage) Validate() error {
	if strings.TrimSpace(m.Config.ID) == "" {
		return commandValidationError("config.id", "is required")
	}
	if strings.TrimSpace(m.Config.URL) == "" {
		return commandValidationError("config.url", "is required")
	}
	return nil
}

type EnqueueForWebhookMessage struct {
	WebhookID      string
	Payload        []byte
	IdempotencyKey string
}

func (EnqueueForWebhookMessage) Type() string { return TypeEnqueueForWebhook }

func (m EnqueueForWebhookMessage) Validate() error {
	if strings.TrimSpace(m.WebhookID) == "" {
		return commandValidationError("webhook_id", "is required")
	}
	return nil
}

// EnqueueEventMessage fans a payload out to every enabled webhook subscribed
// to Event.
type EnqueueEventMessage struct {
	Event          string
	Payload        []byte
	IdempotencyKey string
}

func (EnqueueEventMessage) Type() string { return TypeEnqueueEvent }

func (m EnqueueEventMessage) Validate() error {
	if strings.TrimSpace(m.Event) == "" {
		return commandValidationError("event", "is required")
	}
	return nil
}

// DeliverMessage enqueues and performs the first attempt in one call.
type DeliverMessage struct {
	Config         core.WebhookConfig
	Payload        []byte
	IdempotencyKey string
}

func (DeliverMessage) Type() string { return TypeDeliver }

func (m DeliverMessage) Validate() error {
	return EnqueueMessage(m).Validate()
}

type AttemptMessage struct {
	DeliveryID string
}

func (AttemptMessage) Type() string { return TypeAttempt }

func (m AttemptMessage) Validate() error {
	return validateDeliveryID(m.DeliveryID)
}

type DispatchDueMessage struct {
	Limit int
}

func (DispatchDueMessage) Type() string { return TypeDispatchDue }

func (m DispatchDueMessage) Validate() error {
	if m.Limit < 0 {
		return commandValidationError("limit", "must be >= 0")
	}
	return nil
}

type ResetMessage struct {
	DeliveryID string
}

func (ResetMessage) Type() string { return TypeReset }

func (m ResetMessage) Validate() error {
	return validateDeliveryID(m.DeliveryID)
}

type AbandonMessage struct {
	DeliveryID string
	Reason     string
}

func (AbandonMessage) Type() string { return TypeAbandon }

func (m AbandonMessage) Validate() error {
	return validateDeliveryID(m.DeliveryID)
}

type RegisterWebhookMessage struct {
	Config core.WebhookConfig
}

func (RegisterWebhookMessage) Type() string { return TypeRegisterWebhook }

func (m RegisterWebhookMessage) Validate() error {
	if strings.TrimSpace(m.Config.ID) == "" {
		return commandValidationError("config.id", "is required")
	}
	return nil
}

type RemoveWebhookMessage struct {
	WebhookID string
}

func (RemoveWebhookMessage) Type() string { return TypeRemoveWebhook }

func (m RemoveWebhookMessage) Validate() error {
	if strings.TrimSpace(m.WebhookID) == "" {
		return commandValidationError("webhook_id", "is required")
	}
	return nil
}

func validateDeliveryID(id string) error {
	if strings.TrimSpace(id) == "" {
		return commandValidationError("delivery_id", "is required")
	}
	return nil
}
