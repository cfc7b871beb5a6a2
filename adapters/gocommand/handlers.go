package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	"github.com/goliatone/go-hookdelivery/command"
	"github.com/goliatone/go-hookdelivery/core"
	"github.com/goliatone/go-hookdelivery/query"
)

// Subscriptions collects the dispatcher subscriptions created for the
// delivery handlers so they can be released together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterDeliveryHandlers registers and subscribes every delivery command
// and query against service. On error nothing stays subscribed.
func RegisterDeliveryHandlers(
	adapter *RegistryAdapter,
	service core.DeliveryService,
	runnerOpts ...runner.Option,
) (Subscriptions, error) {
	if service == nil {
		return nil, fmt.Errorf("gocommand: delivery service is required")
	}
	subs := Subscriptions{}
	register := func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			return err
		}
		subs = append(subs, subscription)
		return nil
	}

	steps := []func() error{
		func() error {
			return register(RegisterAndSubscribe[command.EnqueueMessage](adapter, command.NewEnqueueCommand(service), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe[command.EnqueueForWebhookMessage](adapter, command.NewEnqueueForWebhookCommand(service), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe[command.EnqueueEventMessage](adapter, command.NewEnqueueEventCommand(service), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe[command.DeliverMessage](adapter, command.NewDeliverCommand(service), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe[command.AttemptMessage](adapter, command.NewAttemptCommand(service), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe[command.DispatchDueMessage](adapter, command.NewDispatchDueCommand(service), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe[command.ResetMessage](adapter, command.NewResetCommand(service), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe[command.AbandonMessage](adapter, command.NewAbandonCommand(service), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe[command.RegisterWebhookMessage](adapter, command.NewRegisterWebhookCommand(service), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe[command.RemoveWebhookMessage](adapter, command.NewRemoveWebhookCommand(service), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribeQuery[query.GetDeliveryMessage, core.WebhookDelivery](adapter, query.NewGetDeliveryQuery(service), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribeQuery[query.ListDeliveriesMessage, []core.WebhookDelivery](adapter, query.NewListDeliveriesQuery(service), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribeQuery[query.DeliveryStatsMessage, core.WebhookStats](adapter, query.NewDeliveryStatsQuery(service), runnerOpts...))
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			subs.Unsubscribe()
			return nil, err
		}
	}
	return subs, nil
}
