package core

import (
	"testing"
	"time"
)

func statsFixture() []WebhookDelivery {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	statuses := []struct {
		id      string
		webhook string
		status  DeliveryStatus
	}{
		{"d1", "wh_a", DeliveryStatusDelivered},
		{"d2", "wh_a", DeliveryStatusDelivered},
		{"d3", "wh_b", DeliveryStatusDelivered},
		{"d4", "wh_a", DeliveryStatusFailed},
		{"d5", "wh_b", DeliveryStatusFailed},
		{"d6", "wh_b", DeliveryStatusDeadLetter},
	}
	out := make([]WebhookDelivery, 0, len(statuses))
	for i, item := range statuses {
		out = append(out, WebhookDelivery{
			ID:        item.id,
			WebhookID: item.webhook,
			Status:    item.status,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func TestAggregate(t *testing.T) {
	stats := Aggregate(statsFixture())
	if stats.Total != 6 || stats.Delivered != 3 || stats.Failed != 2 || stats.DeadLetter != 1 {
		t.Fatalf("unexpected totals %+v", stats)
	}
	if stats.Pending != 0 || stats.Retrying != 0 {
		t.Fatalf("unexpected active counts %+v", stats)
	}
	a := stats.ByWebhook["wh_a"]
	if a.Total != 3 || a.Delivered != 2 || a.Failed != 1 {
		t.Fatalf("unexpected wh_a breakdown %+v", a)
	}
	b := stats.ByWebhook["wh_b"]
	if b.Total != 3 || b.Delivered != 1 || b.Failed != 2 {
		t.Fatalf("expected dead letters to count as failed per webhook, got %+v", b)
	}
}

func TestAggregate_Empty(t *testing.T) {
	stats := Aggregate(nil)
	if stats.Total != 0 || stats.ByWebhook == nil || len(stats.ByWebhook) != 0 {
		t.Fatalf("unexpected empty stats %+v", stats)
	}
}

func TestFilter(t *testing.T) {
	records := statsFixture()

	failed := Filter(records, DeliveryFilter{Status: DeliveryStatusFailed})
	if len(failed) != 2 || failed[0].ID != "d5" || failed[1].ID != "d4" {
		t.Fatalf("expected failed records newest first, got %+v", failed)
	}

	limited := Filter(records, DeliveryFilter{WebhookID: "wh_a", Limit: 2})
	if len(limited) != 2 || limited[0].ID != "d4" || limited[1].ID != "d2" {
		t.Fatalf("unexpected limited result %+v", limited)
	}

	all := Filter(records, DeliveryFilter{})
	if len(all) != len(records) {
		t.Fatalf("expected all records, got %d", len(all))
	}
	all[0].Status = DeliveryStatusPending
	if records[5].Status != DeliveryStatusDeadLetter {
		t.Fatalf("filter must return copies")
	}
}

func TestFilter_TiesBreakByID(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []WebhookDelivery{
		{ID: "b", CreatedAt: at},
		{ID: "a", CreatedAt: at},
	}
	out := Filter(records, DeliveryFilter{})
	if out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("expected ID tiebreak, got %s,%s", out[0].ID, out[1].ID)
	}
}

func TestSelectDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	earlier := now.Add(-2 * time.Minute)
	future := now.Add(time.Minute)
	records := []WebhookDelivery{
		{ID: "pending", Status: DeliveryStatusPending, CreatedAt: now.Add(-30 * time.Second)},
		{ID: "retry-due", Status: DeliveryStatusRetrying, NextRetryAt: &past},
		{ID: "retry-earlier", Status: DeliveryStatusRetrying, NextRetryAt: &earlier},
		{ID: "retry-future", Status: DeliveryStatusRetrying, NextRetryAt: &future},
		{ID: "at-now", Status: DeliveryStatusRetrying, NextRetryAt: &now},
		{ID: "delivered", Status: DeliveryStatusDelivered},
		{ID: "dead", Status: DeliveryStatusDeadLetter},
	}
	due := SelectDue(records, now)
	want := []string{"retry-earlier", "retry-due", "pending", "at-now"}
	if len(due) != len(want) {
		t.Fatalf("expected %d due records, got %d", len(want), len(due))
	}
	for i, id := range want {
		if due[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, due[i].ID)
		}
	}
}
