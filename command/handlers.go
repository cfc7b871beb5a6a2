package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-hookdelivery/core"
)

type MutatingService interface {
	Enqueue(ctx context.Context, cfg core.WebhookConfig, payload []byte, idempotencyKey string) (core.WebhookDelivery, error)
	EnqueueForWebhook(ctx context.Context, webhookID string, payload []byte, idempotencyKey string) (core.WebhookDelivery, error)
	EnqueueEvent(ctx context.Context, event string, payload []byte, idempotencyKey string) ([]core.WebhookDelivery, error)
	Deliver(ctx context.Context, cfg core.WebhookConfig, payload []byte, idempotencyKey string) (core.WebhookDelivery, error)
	AttemptByID(ctx context.Context, id string) (core.WebhookDelivery, error)
	DispatchDue(ctx context.Context, limit int) (core.DispatchStats, error)
	Reset(ctx context.Context, id string) (core.WebhookDelivery, error)
	Abandon(ctx context.Context, id string, reason string) (core.WebhookDelivery, error)
	RegisterWebhook(ctx context.Context, cfg core.WebhookConfig) (core.WebhookConfig, error)
	RemoveWebhook(ctx context.Context, id string) error
}

type EnqueueCommand struct {
	service MutatingService
}

func NewEnqueueCommand(service MutatingService) *EnqueueCommand {
	return &EnqueueCommand{service: service}
}

func (c *EnqueueCommand) Execute(ctx context.Context, msg EnqueueMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: enqueue service is required")
	}
	out, err := c.service.Enqueue(ctx, msg.Config, msg.Payload, msg.IdempotencyKey)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type EnqueueForWebhookCommand struct {
	service MutatingService
}

func NewEnqueueForWebhookCommand(service MutatingService) *EnqueueForWebhookCommand {
	return &EnqueueForWebhookCommand{service: service}
}

func (c *EnqueueForWebhookCommand) Execute(ctx context.Context, msg EnqueueForWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: enqueue service is required")
	}
	out, err := c.service.EnqueueForWebhook(ctx, msg.WebhookID, msg.Payload, msg.IdempotencyKey)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type EnqueueEventCommand struct {
	service MutatingService
}

func NewEnqueueEventCommand(service MutatingService) *EnqueueEventCommand {
	return &EnqueueEventCommand{service: service}
}

func (c *EnqueueEventCommand) Execute(ctx context.Context, msg EnqueueEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: enqueue service is required")
	}
	out, err := c.service.EnqueueEvent(ctx, msg.Event, msg.Payload, msg.IdempotencyKey)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeliverCommand struct {
	service MutatingService
}

func NewDeliverCommand(service MutatingService) *DeliverCommand {
	return &DeliverCommand{service: service}
}

func (c *DeliverCommand) Execute(ctx context.Context, msg DeliverMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: deliver service is required")
	}
	out, err := c.service.Deliver(ctx, msg.Config, msg.Payload, msg.IdempotencyKey)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AttemptCommand struct {
	service MutatingService
}

func NewAttemptCommand(service MutatingService) *AttemptCommand {
	return &AttemptCommand{service: service}
}

func (c *AttemptCommand) Execute(ctx context.Context, msg AttemptMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: attempt service is required")
	}
	out, err := c.service.AttemptByID(ctx, msg.DeliveryID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DispatchDueCommand struct {
	service MutatingService
}

func NewDispatchDueCommand(service MutatingService) *DispatchDueCommand {
	return &DispatchDueCommand{service: service}
}

func (c *DispatchDueCommand) Execute(ctx context.Context, msg DispatchDueMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dispatch service is required")
	}
	out, err := c.service.DispatchDue(ctx, msg.Limit)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ResetCommand struct {
	service MutatingService
}

func NewResetCommand(service MutatingService) *ResetCommand {
	return &ResetCommand{service: service}
}

func (c *ResetCommand) Execute(ctx context.Context, msg ResetMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: reset service is required")
	}
	out, err := c.service.Reset(ctx, msg.DeliveryID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AbandonCommand struct {
	service MutatingService
}

func NewAbandonCommand(service MutatingService) *AbandonCommand {
	return &AbandonCommand{service: service}
}

func (c *AbandonCommand) Execute(ctx context.Context, msg AbandonMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: abandon service is required")
	}
	out, err := c.service.Abandon(ctx, msg.DeliveryID, msg.Reason)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RegisterWebhookCommand struct {
	service MutatingService
}

func NewRegisterWebhookCommand(service MutatingService) *RegisterWebhookCommand {
	return &RegisterWebhookCommand{service: service}
}

func (c *RegisterWebhookCommand) Execute(ctx context.Context, msg RegisterWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	out, err := c.service.RegisterWebhook(ctx, msg.Config)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RemoveWebhookCommand struct {
	service MutatingService
}

func NewRemoveWebhookCommand(service MutatingService) *RemoveWebhookCommand {
	return &RemoveWebhookCommand{service: service}
}

func (c *RemoveWebhookCommand) Execute(ctx context.Context, msg RemoveWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	return c.service.RemoveWebhook(ctx, msg.WebhookID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
