package query

import (
	"context"

	"github.com/goliatone/go-hookdelivery/core"
)

type DeliveryReader interface {
	Get(ctx context.Context, id string) (core.WebhookDelivery, error)
	List(ctx context.Context, filter core.DeliveryFilter) ([]core.WebhookDelivery, error)
}

type StatsReader interface {
	Stats(ctx context.Context, filter core.DeliveryFilter) (core.WebhookStats, error)
}

type GetDeliveryQuery struct {
	reader DeliveryReader
}

func NewGetDeliveryQuery(reader DeliveryReader) *GetDeliveryQuery {
	return &GetDeliveryQuery{reader: reader}
}

func (q *GetDeliveryQuery) Query(ctx context.Context, msg GetDeliveryMessage) (core.WebhookDelivery, error) {
	if q == nil || q.reader == nil {
		return core.WebhookDelivery{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.Get(ctx, msg.DeliveryID)
}

type ListDeliveriesQuery struct {
	reader DeliveryReader
}

func NewListDeliveriesQuery(reader DeliveryReader) *ListDeliveriesQuery {
	return &ListDeliveriesQuery{reader: reader}
}

func (q *ListDeliveriesQuery) Query(
	ctx context.Context,
	msg ListDeliveriesMessage,
) ([]core.WebhookDelivery, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.List(ctx, msg.Filter)
}

type DeliveryStatsQuery struct {
	reader StatsReader
}

func NewDeliveryStatsQuery(reader StatsReader) *DeliveryStatsQuery {
	return &DeliveryStatsQuery{reader: reader}
}

func (q *DeliveryStatsQuery) Query(ctx context.Context, msg DeliveryStatsMessage) (core.WebhookStats, error) {
	if q == nil || q.reader == nil {
		return core.WebhookStats{}, queryDependencyError("query: stats reader is required")
	}
	return q.reader.Stats(ctx, msg.Filter)
}
