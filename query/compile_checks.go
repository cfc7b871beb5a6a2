package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-hookdelivery/core"
)

var (
	_ gocmd.Querier[GetDeliveryMessage, core.WebhookDelivery]      = (*GetDeliveryQuery)(nil)
	_ gocmd.Querier[ListDeliveriesMessage, []core.WebhookDelivery] = (*ListDeliveriesQuery)(nil)
	_ gocmd.Querier[DeliveryStatsMessage, core.WebhookStats]       = (*DeliveryStatsQuery)(nil)
	_ DeliveryReader                                               = (*core.Coordinator)(nil)
	_ StatsReader                                                  = (*core.Coordinator)(nil)
)
