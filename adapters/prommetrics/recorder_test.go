package prommetrics

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-hookdelivery/core"
	"github.com/goliatone/go-hookdelivery/devkit"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRecorder_CountsCoordinatorOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	coordinator, err := core.NewCoordinator(core.DefaultConfig(),
		core.WithTransport(devkit.NewScriptedTransport(devkit.Respond(200))),
		core.WithMetricsRecorder(NewRecorder(reg)),
		core.WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }),
	)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	if _, err := coordinator.Deliver(context.Background(), core.WebhookConfig{
		ID:      "wh_1",
		URL:     "https://hooks.example.com/a",
		Enabled: true,
	}, []byte(`{}`), "evt_1"); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	enqueued := findMetric(t, reg, "hookdelivery_enqueue_total", map[string]string{
		"operation": "enqueue",
		"status":    "success",
		"outcome":   "created",
	})
	if enqueued == nil || enqueued.GetCounter().GetValue() != 1 {
		t.Fatalf("expected one created enqueue, got %v", enqueued)
	}
	attempted := findMetric(t, reg, "hookdelivery_attempt_total", map[string]string{
		"operation": "attempt",
		"status":    "success",
		"outcome":   "delivered",
	})
	if attempted == nil || attempted.GetCounter().GetValue() != 1 {
		t.Fatalf("expected one delivered attempt, got %v", attempted)
	}
	duration := findMetric(t, reg, "hookdelivery_attempt_duration_ms", map[string]string{
		"operation": "attempt",
		"status":    "success",
		"outcome":   "delivered",
	})
	if duration == nil || duration.GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected one attempt duration sample, got %v", duration)
	}
}

func TestRecorder_DropsUnlistedTagsAndNegativeCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder := NewRecorder(reg, WithLabels("status", "status", " "))
	ctx := context.Background()

	recorder.IncCounter(ctx, "hookdelivery.test.total", 2, map[string]string{"status": "success", "webhook_id": "wh_1"})
	recorder.IncCounter(ctx, "hookdelivery.test.total", -5, map[string]string{"status": "success"})
	recorder.IncCounter(ctx, "hookdelivery.test.total", 1, nil)

	success := findMetric(t, reg, "hookdelivery_test_total", map[string]string{"status": "success"})
	if success == nil || success.GetCounter().GetValue() != 2 {
		t.Fatalf("expected success series of 2, got %v", success)
	}
	blank := findMetric(t, reg, "hookdelivery_test_total", map[string]string{"status": ""})
	if blank == nil || blank.GetCounter().GetValue() != 1 {
		t.Fatalf("expected untagged series of 1, got %v", blank)
	}
}

func TestRecorder_SharesCollectorsAcrossRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	ctx := context.Background()
	first := NewRecorder(reg)
	second := NewRecorder(reg)

	first.ObserveHistogram(ctx, "hookdelivery.dispatch_due.duration_ms", 12, map[string]string{"operation": "dispatch_due"})
	second.ObserveHistogram(ctx, "hookdelivery.dispatch_due.duration_ms", 40, map[string]string{"operation": "dispatch_due"})

	metric := findMetric(t, reg, "hookdelivery_dispatch_due_duration_ms", map[string]string{
		"operation": "dispatch_due",
		"status":    "",
		"outcome":   "",
	})
	if metric == nil || metric.GetHistogram().GetSampleCount() != 2 {
		t.Fatalf("expected both recorders to share one histogram, got %v", metric)
	}
	if metric.GetHistogram().GetSampleSum() != 52 {
		t.Fatalf("expected sample sum 52, got %v", metric.GetHistogram().GetSampleSum())
	}
}

func TestRecorder_SkipsNameTakenByOtherCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "hookdelivery_taken_total", Help: "taken"})
	if err := reg.Register(gauge); err != nil {
		t.Fatalf("register gauge: %v", err)
	}
	recorder := NewRecorder(reg)
	recorder.IncCounter(context.Background(), "hookdelivery.taken.total", 1, nil)

	if counter := recorder.counterVec("hookdelivery.taken.total"); counter != nil {
		t.Fatalf("expected conflicting name to be skipped")
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"hookdelivery.enqueue.total": "hookdelivery_enqueue_total",
		" attempt-duration ":         "attempt_duration",
		"5xx.count":                  "_5xx_count",
		"":                           "",
	}
	for input, want := range cases {
		if got := sanitizeName(input); got != want {
			t.Fatalf("sanitizeName(%q): expected %q, got %q", input, want, got)
		}
	}
}

func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return metric
			}
		}
	}
	return nil
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, pair := range pairs {
		if value, ok := want[pair.GetName()]; !ok || value != pair.GetValue() {
			return false
		}
	}
	return true
}
