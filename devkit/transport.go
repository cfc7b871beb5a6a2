// Package devkit provides test doubles for exercising a coordinator without a
// network.
package devkit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goliatone/go-hookdelivery/core"
)

// Step is one scripted transport outcome.
type Step struct {
	Status  int
	Headers map[string]string
	Body    string
	Err     error
	Delay   time.Duration
}

func Respond(status int) Step {
	return Step{Status: status}
}

func RespondWithBody(status int, body string) Step {
	return Step{Status: status, Body: body}
}

// RetryAfter responds with status and a Retry-After header in seconds.
func RetryAfter(status int, after time.Duration) Step {
	return Step{
		Status:  status,
		Headers: map[string]string{"Retry-After": strconv.Itoa(int(after / time.Second))},
	}
}

func Fail(err error) Step {
	return Step{Err: err}
}

// ScriptedTransport replays Steps in order and repeats the last one once the
// script is exhausted. With no steps it answers 200.
type ScriptedTransport struct {
	mu       sync.Mutex
	steps    []Step
	requests []core.TransportRequest
}

func NewScriptedTransport(steps ...Step) *ScriptedTransport {
	return &ScriptedTransport{steps: append([]Step(nil), steps...)}
}

func (t *ScriptedTransport) Send(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	t.mu.Lock()
	step := Step{Status: http.StatusOK}
	if index := len(t.requests); len(t.steps) > 0 {
		if index >= len(t.steps) {
			index = len(t.steps) - 1
		}
		step = t.steps[index]
	}
	t.requests = append(t.requests, cloneRequest(req))
	t.mu.Unlock()

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return core.TransportResponse{}, ctx.Err()
		case <-timer.C:
		}
	}
	if step.Err != nil {
		return core.TransportResponse{}, step.Err
	}
	headers := make(map[string]string, len(step.Headers))
	for key, value := range step.Headers {
		headers[key] = value
	}
	return core.TransportResponse{
		StatusCode: step.Status,
		Headers:    headers,
		Body:       []byte(step.Body),
		Duration:   step.Delay,
	}, nil
}

// Requests returns a copy of every request seen so far.
func (t *ScriptedTransport) Requests() []core.TransportRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]core.TransportRequest, len(t.requests))
	copy(out, t.requests)
	return out
}

func (t *ScriptedTransport) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

func cloneRequest(req core.TransportRequest) core.TransportRequest {
	out := req
	out.Body = append([]byte(nil), req.Body...)
	out.Headers = make(map[string]string, len(req.Headers))
	for key, value := range req.Headers {
		out.Headers[key] = value
	}
	return out
}

var _ core.Transport = (*ScriptedTransport)(nil)
