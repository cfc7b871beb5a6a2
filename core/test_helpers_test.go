package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-hookdelivery/retry"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

type scriptedStep struct {
	response TransportResponse
	err      error
}

// scriptedTransport replays steps in order and repeats the last one.
type scriptedTransport struct {
	mu       sync.Mutex
	steps    []scriptedStep
	requests []TransportRequest
}

func newScriptedTransport(steps ...scriptedStep) *scriptedTransport {
	return &scriptedTransport{steps: steps}
}

func respond(status int) scriptedStep {
	return scriptedStep{response: TransportResponse{StatusCode: status, Headers: map[string]string{}}}
}

func fail(err error) scriptedStep {
	return scriptedStep{err: err}
}

func (t *scriptedTransport) Send(_ context.Context, req TransportRequest) (TransportResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, req)
	if len(t.steps) == 0 {
		return TransportResponse{StatusCode: 200}, nil
	}
	index := len(t.requests) - 1
	if index >= len(t.steps) {
		index = len(t.steps) - 1
	}
	step := t.steps[index]
	return step.response, step.err
}

func (t *scriptedTransport) calls() []TransportRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TransportRequest(nil), t.requests...)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	next := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("%s_%d", prefix, next)
	}
}

func testWebhookConfig() WebhookConfig {
	return WebhookConfig{
		ID:      "wh_1",
		URL:     "https://hooks.example.com/pipeline",
		Secret:  "s3cret",
		Enabled: true,
		Retry: RetryConfig{
			MaxAttempts:       3,
			InitialDelay:      time.Second,
			MaxDelay:          30 * time.Second,
			BackoffMultiplier: 2,
		},
	}
}

func newTestCoordinator(t *testing.T, transport Transport, clock *testClock, opts ...Option) (*Coordinator, *MemoryDeliveryStore) {
	t.Helper()
	store := NewMemoryDeliveryStore()
	base := []Option{
		WithTransport(transport),
		WithDeliveryStore(store),
		WithLogger(stubLogger{}),
		WithClock(clock.Now),
		WithIDGenerator(sequentialIDs("dlv")),
		WithCalculator(retry.NewCalculator(1)),
	}
	coordinator, err := NewCoordinator(DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return coordinator, store
}
