package hookdelivery

import (
	"fmt"

	hookcommand "github.com/goliatone/go-hookdelivery/command"
	"github.com/goliatone/go-hookdelivery/core"
	hookquery "github.com/goliatone/go-hookdelivery/query"
)

type CommandQueryService = core.DeliveryService

type Commands struct {
	Enqueue           *hookcommand.EnqueueCommand
	EnqueueForWebhook *hookcommand.EnqueueForWebhookCommand
	EnqueueEvent      *hookcommand.EnqueueEventCommand
	Deliver           *hookcommand.DeliverCommand
	Attempt           *hookcommand.AttemptCommand
	DispatchDue       *hookcommand.DispatchDueCommand
	Reset             *hookcommand.ResetCommand
	Abandon           *hookcommand.AbandonCommand
	RegisterWebhook   *hookcommand.RegisterWebhookCommand
	RemoveWebhook     *hookcommand.RemoveWebhookCommand
}

type Queries struct {
	GetDelivery    *hookquery.GetDeliveryQuery
	ListDeliveries *hookquery.ListDeliveriesQuery
	Stats          *hookquery.DeliveryStatsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	statsReader hookquery.StatsReader
}

// WithStatsReader serves the stats query from reader instead of the service,
// for example a reporting replica.
func WithStatsReader(reader hookquery.StatsReader) FacadeOption {
	return func(options *facadeOptions) {
		options.statsReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("hookdelivery: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	stats := cfg.statsReader
	if stats == nil {
		stats = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Enqueue:           hookcommand.NewEnqueueCommand(service),
		EnqueueForWebhook: hookcommand.NewEnqueueForWebhookCommand(service),
		EnqueueEvent:      hookcommand.NewEnqueueEventCommand(service),
		Deliver:           hookcommand.NewDeliverCommand(service),
		Attempt:           hookcommand.NewAttemptCommand(service),
		DispatchDue:       hookcommand.NewDispatchDueCommand(service),
		Reset:             hookcommand.NewResetCommand(service),
		Abandon:           hookcommand.NewAbandonCommand(service),
		RegisterWebhook:   hookcommand.NewRegisterWebhookCommand(service),
		RemoveWebhook:     hookcommand.NewRemoveWebhookCommand(service),
	}
	facade.queries = Queries{
		GetDelivery:    hookquery.NewGetDeliveryQuery(service),
		ListDeliveries: hookquery.NewListDeliveriesQuery(service),
		Stats:          hookquery.NewDeliveryStatsQuery(stats),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
