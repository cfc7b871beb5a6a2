package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hookdelivery/core"
	"github.com/goliatone/go-hookdelivery/retry"
)

func TestHTTPTransport_SendsMethodHeadersAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT method, got %s", r.Method)
		}
		if got := r.Header.Get("X-Signature"); got != "sha256=abc" {
			t.Errorf("expected signature header, got %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "hookdelivery-test" {
			t.Errorf("expected default user agent, got %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"id":1}` {
			t.Errorf("unexpected body %q", string(body))
		}
		w.Header().Set("X-Request-Id", "req_1")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	transport := NewHTTPTransport(server.Client())
	transport.DefaultHeaders["User-Agent"] = "hookdelivery-test"

	res, err := transport.Send(context.Background(), core.TransportRequest{
		Method:  "put",
		URL:     server.URL,
		Headers: map[string]string{"X-Signature": "sha256=abc"},
		Body:    []byte(`{"id":1}`),
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.StatusCode != http.StatusAccepted || string(res.Body) != "ok" {
		t.Fatalf("unexpected response %+v", res)
	}
	if res.Headers["X-Request-Id"] != "req_1" {
		t.Fatalf("expected flattened response headers, got %#v", res.Headers)
	}
	if res.Truncated {
		t.Fatalf("expected untruncated body")
	}
}

func TestHTTPTransport_NonSuccessIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	res, err := NewHTTPTransport(server.Client()).Send(context.Background(), core.TransportRequest{URL: server.URL})
	if err != nil {
		t.Fatalf("expected no error for 503, got %v", err)
	}
	if res.StatusCode != http.StatusServiceUnavailable || res.Headers["Retry-After"] != "5" {
		t.Fatalf("unexpected response %+v", res)
	}
}

func TestHTTPTransport_TruncatesLargeBodies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 32)))
	}))
	defer server.Close()

	transport := NewHTTPTransport(server.Client())
	transport.MaxResponseBodyBytes = 8

	res, err := transport.Send(context.Background(), core.TransportRequest{URL: server.URL})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(res.Body) != 8 || !res.Truncated {
		t.Fatalf("expected body truncated to 8 bytes, got %d truncated=%v", len(res.Body), res.Truncated)
	}

	res, err = transport.Send(context.Background(), core.TransportRequest{URL: server.URL, MaxResponseBodyBytes: 4})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(res.Body) != 4 {
		t.Fatalf("expected request limit to win, got %d", len(res.Body))
	}
}

func TestHTTPTransport_TruncatesOnRuneBoundary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("é", 8)))
	}))
	defer server.Close()

	transport := NewHTTPTransport(server.Client())
	res, err := transport.Send(context.Background(), core.TransportRequest{URL: server.URL, MaxResponseBodyBytes: 5})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if string(res.Body) != "éé" || !res.Truncated {
		t.Fatalf("expected two whole runes, got %q truncated=%v", res.Body, res.Truncated)
	}
}

func TestHTTPTransport_TimeoutIsRetryable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewHTTPTransport(server.Client()).Send(context.Background(), core.TransportRequest{
		URL:     server.URL,
		Timeout: 20 * time.Millisecond,
	})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !retry.IsRetryableError(err) {
		t.Fatalf("expected timeout to be retryable: %v", err)
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal || rich.TextCode != core.DeliveryErrorTransportFailed {
		t.Fatalf("unexpected envelope %q %q", rich.Category, rich.TextCode)
	}
}

func TestHTTPTransport_InvalidURLReturnsBadInput(t *testing.T) {
	_, err := NewHTTPTransport(nil).Send(context.Background(), core.TransportRequest{URL: "/relative"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %v", err)
	}
	if rich.Code != http.StatusBadRequest || rich.TextCode != core.DeliveryErrorBadInput {
		t.Fatalf("unexpected envelope code=%d text=%q", rich.Code, rich.TextCode)
	}
	if retry.IsRetryableError(err) {
		t.Fatalf("bad input must not be retryable")
	}
}

type failingDoer struct{ err error }

func (d failingDoer) Do(*http.Request) (*http.Response, error) { return nil, d.err }

func TestHTTPTransport_ClientErrorIsWrapped(t *testing.T) {
	source := errors.New("connection reset by peer")
	_, err := NewHTTPTransport(failingDoer{err: source}).Send(context.Background(), core.TransportRequest{URL: "https://hooks.example.com"})
	if err == nil {
		t.Fatalf("expected client error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 envelope, got %v", err)
	}
	if !retry.IsRetryableError(err) {
		t.Fatalf("expected connection reset to be retryable")
	}
}

func TestHTTPTransport_NilReturnsRichError(t *testing.T) {
	var transport *HTTPTransport
	_, err := transport.Send(context.Background(), core.TransportRequest{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.DeliveryErrorInternal {
		t.Fatalf("expected internal envelope, got %v", err)
	}
}
