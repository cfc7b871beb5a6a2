package gocommand

import (
	"context"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-hookdelivery/command"
	"github.com/goliatone/go-hookdelivery/core"
	"github.com/goliatone/go-hookdelivery/devkit"
	"github.com/goliatone/go-hookdelivery/query"
)

func TestRegisterDeliveryHandlers_DispatchesToCoordinator(t *testing.T) {
	transport := devkit.NewScriptedTransport(devkit.Respond(202))
	coordinator, err := core.NewCoordinator(core.DefaultConfig(),
		core.WithTransport(transport),
		core.WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }),
	)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}

	adapter := NewRegistryAdapter(gocmd.NewRegistry())
	subs, err := RegisterDeliveryHandlers(adapter, coordinator)
	if err != nil {
		t.Fatalf("register delivery handlers: %v", err)
	}
	t.Cleanup(subs.Unsubscribe)
	if len(subs) != 13 {
		t.Fatalf("expected 13 subscriptions, got %d", len(subs))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	ctx := context.Background()
	if err := Dispatch(ctx, command.RegisterWebhookMessage{Config: core.WebhookConfig{
		ID:      "wh_cmd",
		URL:     "https://hooks.example.com/cmd",
		Event:   "build.finished",
		Enabled: true,
	}}); err != nil {
		t.Fatalf("dispatch register webhook: %v", err)
	}

	collector := gocmd.NewResult[[]core.WebhookDelivery]()
	if err := Dispatch(gocmd.ContextWithResult(ctx, collector), command.EnqueueEventMessage{
		Event:          "build.finished",
		Payload:        []byte(`{"build":7}`),
		IdempotencyKey: "build-7",
	}); err != nil {
		t.Fatalf("dispatch enqueue event: %v", err)
	}
	deliveries, ok := collector.Load()
	if !ok || len(deliveries) != 1 {
		t.Fatalf("expected one fan-out delivery, got %#v", deliveries)
	}

	if err := Dispatch(ctx, command.DispatchDueMessage{}); err != nil {
		t.Fatalf("dispatch due: %v", err)
	}
	if transport.Calls() != 1 {
		t.Fatalf("expected one transport call, got %d", transport.Calls())
	}

	delivered, err := Query[query.GetDeliveryMessage, core.WebhookDelivery](ctx, query.GetDeliveryMessage{
		DeliveryID: deliveries[0].ID,
	})
	if err != nil {
		t.Fatalf("query delivery: %v", err)
	}
	if delivered.Status != core.DeliveryStatusDelivered {
		t.Fatalf("expected delivered record, got %s", delivered.Status)
	}

	stats, err := Query[query.DeliveryStatsMessage, core.WebhookStats](ctx, query.DeliveryStatsMessage{})
	if err != nil {
		t.Fatalf("query stats: %v", err)
	}
	if stats.Delivered != 1 || stats.ByWebhook["wh_cmd"].Total != 1 {
		t.Fatalf("unexpected stats %#v", stats)
	}
}

func TestRegisterDeliveryHandlers_RequiresService(t *testing.T) {
	if _, err := RegisterDeliveryHandlers(NewRegistryAdapter(nil), nil); err == nil {
		t.Fatalf("expected missing service error")
	}
}
