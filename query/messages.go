package query

import (
	"strings"

	"github.com/goliatone/go-hookdelivery/core"
)

const (
	TypeGetDelivery    = "hookdelivery.query.delivery.get"
	TypeListDeliveries = "hookdelivery.query.delivery.list"
	TypeDeliveryStats  = "hookdelivery.query.delivery.stats"
)

type GetDeliveryMessage struct {
	DeliveryID string
}

func (GetDeliveryMessage) Type() string { return TypeGetDelivery }

func (m GetDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.DeliveryID) == "" {
		return queryValidationError("delivery_id", "is required")
	}
	return nil
}

type ListDeliveriesMessage struct {
	Filter core.DeliveryFilter
}

func (ListDeliveriesMessage) Type() string { return TypeListDeliveries }

func (m ListDeliveriesMessage) Validate() error {
	return queryWrapValidation(m.Filter.Validate(), "query: invalid delivery filter")
}

// DeliveryStatsMessage aggregates the deliveries matching Filter. A zero
// filter covers the whole store.
type DeliveryStatsMessage struct {
	Filter core.DeliveryFilter
}

func (DeliveryStatsMessage) Type() string { return TypeDeliveryStats }

func (m DeliveryStatsMessage) Validate() error {
	return queryWrapValidation(m.Filter.Validate(), "query: invalid delivery filter")
}
