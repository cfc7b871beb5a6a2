package command

import (
	"context"
	"fmt"
	"testing"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hookdelivery/core"
)

func TestEnqueueCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.WebhookDelivery{ID: "dlv_1", Status: core.DeliveryStatusPending}
	called := false
	svc := &stubMutatingService{
		enqueueFn: func(_ context.Context, cfg core.WebhookConfig, payload []byte, key string) (core.WebhookDelivery, error) {
			called = true
			if cfg.ID != "wh_1" || string(payload) != `{"id":1}` || key != "evt_1" {
				t.Fatalf("unexpected enqueue input: %q %q %q", cfg.ID, payload, key)
			}
			return expected, nil
		},
	}

	cmd := NewEnqueueCommand(svc)
	collector := gocmd.NewResult[core.WebhookDelivery]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := cmd.Execute(ctx, EnqueueMessage{
		Config:         core.WebhookConfig{ID: "wh_1", URL: "https://hooks.example.com"},
		Payload:        []byte(`{"id":1}`),
		IdempotencyKey: "evt_1",
	})
	if err != nil {
		t.Fatalf("execute enqueue: %v", err)
	}
	if !called {
		t.Fatalf("expected enqueue service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.ID != expected.ID {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestMutationCommands_DelegateToService(t *testing.T) {
	t.Run("enqueue event", func(t *testing.T) {
		svc := &stubMutatingService{
			enqueueEventFn: func(_ context.Context, event string, _ []byte, key string) ([]core.WebhookDelivery, error) {
				if event != "pipeline.failed" || key != "evt_9" {
					t.Fatalf("unexpected event input: %q %q", event, key)
				}
				return []core.WebhookDelivery{{ID: "dlv_1"}, {ID: "dlv_2"}}, nil
			},
		}
		collector := gocmd.NewResult[[]core.WebhookDelivery]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewEnqueueEventCommand(svc).Execute(ctx, EnqueueEventMessage{
			Event:          "pipeline.failed",
			IdempotencyKey: "evt_9",
		}); err != nil {
			t.Fatalf("execute enqueue event: %v", err)
		}
		stored, ok := collector.Load()
		if !ok || len(stored) != 2 {
			t.Fatalf("expected fan-out result, got %#v", stored)
		}
	})

	t.Run("dispatch due", func(t *testing.T) {
		svc := &stubMutatingService{
			dispatchDueFn: func(_ context.Context, limit int) (core.DispatchStats, error) {
				if limit != 25 {
					t.Fatalf("expected limit 25, got %d", limit)
				}
				return core.DispatchStats{Claimed: 3, Delivered: 2, Retried: 1}, nil
			},
		}
		collector := gocmd.NewResult[core.DispatchStats]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewDispatchDueCommand(svc).Execute(ctx, DispatchDueMessage{Limit: 25}); err != nil {
			t.Fatalf("execute dispatch: %v", err)
		}
		stats, ok := collector.Load()
		if !ok || stats.Claimed != 3 || stats.Retried != 1 {
			t.Fatalf("unexpected dispatch stats %#v", stats)
		}
	})

	t.Run("abandon", func(t *testing.T) {
		called := false
		svc := &stubMutatingService{
			abandonFn: func(_ context.Context, id string, reason string) (core.WebhookDelivery, error) {
				called = true
				if id != "dlv_1" || reason != "endpoint retired" {
					t.Fatalf("unexpected abandon input: %q %q", id, reason)
				}
				return core.WebhookDelivery{ID: id, Status: core.DeliveryStatusFailed}, nil
			},
		}
		if err := NewAbandonCommand(svc).Execute(context.Background(), AbandonMessage{
			DeliveryID: "dlv_1",
			Reason:     "endpoint retired",
		}); err != nil {
			t.Fatalf("execute abandon: %v", err)
		}
		if !called {
			t.Fatalf("expected abandon invocation")
		}
	})

	t.Run("remove webhook", func(t *testing.T) {
		removed := ""
		svc := &stubMutatingService{
			removeWebhookFn: func(_ context.Context, id string) error {
				removed = id
				return nil
			},
		}
		if err := NewRemoveWebhookCommand(svc).Execute(context.Background(), RemoveWebhookMessage{WebhookID: "wh_1"}); err != nil {
			t.Fatalf("execute remove webhook: %v", err)
		}
		if removed != "wh_1" {
			t.Fatalf("expected wh_1 removal, got %q", removed)
		}
	})
}

func TestCommands_PropagateServiceErrors(t *testing.T) {
	svc := &stubMutatingService{
		resetFn: func(context.Context, string) (core.WebhookDelivery, error) {
			return core.WebhookDelivery{}, fmt.Errorf("reset failed")
		},
	}
	collector := gocmd.NewResult[core.WebhookDelivery]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewResetCommand(svc).Execute(ctx, ResetMessage{DeliveryID: "dlv_1"}); err == nil {
		t.Fatalf("expected reset error")
	}
	if _, ok := collector.Load(); ok {
		t.Fatalf("expected no result on failure")
	}
}

func TestMessages_ValidateReturnsRichErrors(t *testing.T) {
	cases := []struct {
		name  string
		msg   interface{ Validate() error }
		field string
	}{
		{name: "enqueue id", msg: EnqueueMessage{}, field: "config.id"},
		{name: "enqueue url", msg: EnqueueMessage{Config: core.WebhookConfig{ID: "wh_1"}}, field: "config.url"},
		{name: "deliver", msg: DeliverMessage{}, field: "config.id"},
		{name: "enqueue for webhook", msg: EnqueueForWebhookMessage{}, field: "webhook_id"},
		{name: "event", msg: EnqueueEventMessage{Event: "  "}, field: "event"},
		{name: "attempt", msg: AttemptMessage{}, field: "delivery_id"},
		{name: "dispatch", msg: DispatchDueMessage{Limit: -1}, field: "limit"},
		{name: "reset", msg: ResetMessage{}, field: "delivery_id"},
		{name: "abandon", msg: AbandonMessage{}, field: "delivery_id"},
		{name: "register", msg: RegisterWebhookMessage{}, field: "config.id"},
		{name: "remove", msg: RemoveWebhookMessage{}, field: "webhook_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) {
				t.Fatalf("expected go-errors envelope, got %T", err)
			}
			if rich.Category != goerrors.CategoryValidation {
				t.Fatalf("expected validation category, got %q", rich.Category)
			}
			if rich.TextCode != core.DeliveryErrorBadInput {
				t.Fatalf("expected %q text code, got %q", core.DeliveryErrorBadInput, rich.TextCode)
			}
			if len(rich.ValidationErrors) != 1 || rich.ValidationErrors[0].Field != tc.field {
				t.Fatalf("expected field %q, got %#v", tc.field, rich.ValidationErrors)
			}
		})
	}

	if err := (DispatchDueMessage{}).Validate(); err != nil {
		t.Fatalf("expected zero limit to be valid, got %v", err)
	}
}

func TestCommands_NilServiceReturnsRichError(t *testing.T) {
	var cmd *AttemptCommand
	err := cmd.Execute(context.Background(), AttemptMessage{DeliveryID: "dlv_1"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal || rich.TextCode != core.DeliveryErrorInternal {
		t.Fatalf("unexpected dependency error %#v", rich)
	}
	if err := NewRemoveWebhookCommand(nil).Execute(context.Background(), RemoveWebhookMessage{WebhookID: "wh_1"}); err == nil {
		t.Fatalf("expected nil service error")
	}
}

func TestMessageTypesAreUnique(t *testing.T) {
	types := []string{
		EnqueueMessage{}.Type(),
		EnqueueForWebhookMessage{}.Type(),
		EnqueueEventMessage{}.Type(),
		DeliverMessage{}.Type(),
		AttemptMessage{}.Type(),
		DispatchDueMessage{}.Type(),
		ResetMessage{}.Type(),
		AbandonMessage{}.Type(),
		RegisterWebhookMessage{}.Type(),
		RemoveWebhookMessage{}.Type(),
	}
	seen := map[string]struct{}{}
	for _, typ := range types {
		if _, ok := seen[typ]; ok {
			t.Fatalf("duplicate message type %q", typ)
		}
		seen[typ] = struct{}{}
	}
}

type stubMutatingService struct {
	enqueueFn       func(context.Context, core.WebhookConfig, []byte, string) (core.WebhookDelivery, error)
	enqueueEventFn  func(context.Context, string, []byte, string) ([]core.WebhookDelivery, error)
	dispatchDueFn   func(context.Context, int) (core.DispatchStats, error)
	resetFn         func(context.Context, string) (core.WebhookDelivery, error)
	abandonFn       func(context.Context, string, string) (core.WebhookDelivery, error)
	removeWebhookFn func(context.Context, string) error
}

func (s *stubMutatingService) Enqueue(ctx context.Context, cfg core.WebhookConfig, payload []byte, key string) (core.WebhookDelivery, error) {
	if s.enqueueFn != nil {
		return s.enqueueFn(ctx, cfg, payload, key)
	}
	return core.WebhookDelivery{}, nil
}

func (s *stubMutatingService) EnqueueForWebhook(context.Context, string, []byte, string) (core.WebhookDelivery, error) {
	return core.WebhookDelivery{}, nil
}

func (s *stubMutatingService) EnqueueEvent(ctx context.Context, event string, payload []byte, key string) ([]core.WebhookDelivery, error) {
	if s.enqueueEventFn != nil {
		return s.enqueueEventFn(ctx, event, payload, key)
	}
	return nil, nil
}

func (s *stubMutatingService) Deliver(context.Context, core.WebhookConfig, []byte, string) (core.WebhookDelivery, error) {
	return core.WebhookDelivery{}, nil
}

func (s *stubMutatingService) AttemptByID(context.Context, string) (core.WebhookDelivery, error) {
	return core.WebhookDelivery{}, nil
}

func (s *stubMutatingService) DispatchDue(ctx context.Context, limit int) (core.DispatchStats, error) {
	if s.dispatchDueFn != nil {
		return s.dispatchDueFn(ctx, limit)
	}
	return core.DispatchStats{}, nil
}

func (s *stubMutatingService) Reset(ctx context.Context, id string) (core.WebhookDelivery, error) {
	if s.resetFn != nil {
		return s.resetFn(ctx, id)
	}
	return core.WebhookDelivery{}, nil
}

func (s *stubMutatingService) Abandon(ctx context.Context, id string, reason string) (core.WebhookDelivery, error) {
	if s.abandonFn != nil {
		return s.abandonFn(ctx, id, reason)
	}
	return core.WebhookDelivery{}, nil
}

func (s *stubMutatingService) RegisterWebhook(_ context.Context, cfg core.WebhookConfig) (core.WebhookConfig, error) {
	return cfg, nil
}

func (s *stubMutatingService) RemoveWebhook(ctx context.Context, id string) error {
	if s.removeWebhookFn != nil {
		return s.removeWebhookFn(ctx, id)
	}
	return nil
}
