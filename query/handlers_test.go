package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hookdelivery/core"
	"github.com/goliatone/go-hookdelivery/devkit"
)

func TestGetDeliveryQuery_QueryDelegates(t *testing.T) {
	called := false
	reader := stubDeliveryReader{
		getFn: func(_ context.Context, id string) (core.WebhookDelivery, error) {
			called = true
			if id != "dlv_1" {
				t.Fatalf("unexpected delivery id %q", id)
			}
			return core.WebhookDelivery{ID: id, Status: core.DeliveryStatusRetrying}, nil
		},
	}

	result, err := NewGetDeliveryQuery(reader).Query(context.Background(), GetDeliveryMessage{DeliveryID: "dlv_1"})
	if err != nil {
		t.Fatalf("query delivery: %v", err)
	}
	if !called {
		t.Fatalf("expected delivery reader invocation")
	}
	if result.Status != core.DeliveryStatusRetrying {
		t.Fatalf("unexpected delivery result: %#v", result)
	}
}

func TestListDeliveriesQuery_QueryDelegates(t *testing.T) {
	reader := stubDeliveryReader{
		listFn: func(_ context.Context, filter core.DeliveryFilter) ([]core.WebhookDelivery, error) {
			if filter.WebhookID != "wh_1" || filter.Status != core.DeliveryStatusFailed || filter.Limit != 10 {
				t.Fatalf("unexpected filter: %#v", filter)
			}
			return []core.WebhookDelivery{{ID: "dlv_2"}, {ID: "dlv_1"}}, nil
		},
	}
	items, err := NewListDeliveriesQuery(reader).Query(context.Background(), ListDeliveriesMessage{
		Filter: core.DeliveryFilter{WebhookID: "wh_1", Status: core.DeliveryStatusFailed, Limit: 10},
	})
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(items) != 2 || items[0].ID != "dlv_2" {
		t.Fatalf("unexpected list result: %#v", items)
	}
}

func TestQueries_PropagateReaderErrors(t *testing.T) {
	reader := stubDeliveryReader{
		getFn: func(context.Context, string) (core.WebhookDelivery, error) {
			return core.WebhookDelivery{}, fmt.Errorf("store unavailable")
		},
	}
	if _, err := NewGetDeliveryQuery(reader).Query(context.Background(), GetDeliveryMessage{DeliveryID: "dlv_1"}); err == nil {
		t.Fatalf("expected reader error")
	}
}

func TestDeliveryStatsQuery_AggregatesThroughCoordinator(t *testing.T) {
	ctx := context.Background()
	coordinator, err := core.NewCoordinator(core.DefaultConfig(),
		core.WithTransport(devkit.NewScriptedTransport(devkit.Respond(200), devkit.Respond(400))),
		core.WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }),
	)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	cfg := core.WebhookConfig{ID: "wh_1", URL: "https://hooks.example.com/a", Enabled: true}
	if _, err := coordinator.Deliver(ctx, cfg, []byte(`{"n":1}`), "evt_1"); err != nil {
		t.Fatalf("deliver first: %v", err)
	}
	if _, err := coordinator.Deliver(ctx, cfg, []byte(`{"n":2}`), "evt_2"); err != nil {
		t.Fatalf("deliver second: %v", err)
	}

	stats, err := NewDeliveryStatsQuery(coordinator).Query(ctx, DeliveryStatsMessage{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 || stats.Delivered != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats %#v", stats)
	}
	breakdown := stats.ByWebhook["wh_1"]
	if breakdown.Total != 2 || breakdown.Delivered != 1 || breakdown.Failed != 1 {
		t.Fatalf("unexpected webhook breakdown %#v", breakdown)
	}

	listed, err := NewListDeliveriesQuery(coordinator).Query(ctx, ListDeliveriesMessage{
		Filter: core.DeliveryFilter{Status: core.DeliveryStatusFailed},
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 1 || listed[0].ResponseStatus != 400 {
		t.Fatalf("expected the 400 delivery, got %#v", listed)
	}
}

func TestMessages_ValidateReturnsRichErrors(t *testing.T) {
	cases := []struct {
		name string
		msg  interface{ Validate() error }
	}{
		{name: "get", msg: GetDeliveryMessage{DeliveryID: " "}},
		{name: "list status", msg: ListDeliveriesMessage{Filter: core.DeliveryFilter{Status: "LOST"}}},
		{name: "stats limit", msg: DeliveryStatsMessage{Filter: core.DeliveryFilter{Limit: -1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) {
				t.Fatalf("expected go-errors envelope, got %T", err)
			}
			if rich.TextCode != core.DeliveryErrorBadInput {
				t.Fatalf("expected %q text code, got %q", core.DeliveryErrorBadInput, rich.TextCode)
			}
		})
	}
	if err := (ListDeliveriesMessage{}).Validate(); err != nil {
		t.Fatalf("expected zero filter to be valid, got %v", err)
	}
}

func TestQueries_NilReaderReturnsRichError(t *testing.T) {
	var qry *DeliveryStatsQuery
	_, err := qry.Query(context.Background(), DeliveryStatsMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if _, err := NewListDeliveriesQuery(nil).Query(context.Background(), ListDeliveriesMessage{}); err == nil {
		t.Fatalf("expected nil reader error")
	}
}

type stubDeliveryReader struct {
	getFn  func(context.Context, string) (core.WebhookDelivery, error)
	listFn func(context.Context, core.DeliveryFilter) ([]core.WebhookDelivery, error)
}

func (s stubDeliveryReader) Get(ctx context.Context, id string) (core.WebhookDelivery, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return core.WebhookDelivery{}, nil
}

func (s stubDeliveryReader) List(ctx context.Context, filter core.DeliveryFilter) ([]core.WebhookDelivery, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return nil, nil
}
