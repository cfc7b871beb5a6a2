package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// StatusError reports a non-2xx response from a remote endpoint.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "retry: unexpected status"
	}
	text := http.StatusText(e.StatusCode)
	if text == "" {
		return fmt.Sprintf("retry: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("retry: unexpected status %d %s", e.StatusCode, text)
}

func (e *StatusError) IsRetryable() bool {
	if e == nil {
		return false
	}
	return IsRetryableStatus(e.StatusCode)
}

// IsRetryableStatus reports whether an HTTP status is transient: 408, 429 and
// every 5xx except 501.
func IsRetryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code == http.StatusNotImplemented:
		return false
	case code >= 500 && code <= 599:
		return true
	default:
		return false
	}
}

type retryableMarker interface {
	IsRetryable() bool
}

// IsRetryableError classifies err using structured signals first and falls
// back to message patterns only when nothing structured is available.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var marker retryableMarker
	if errors.As(err, &marker) {
		return marker.IsRetryable()
	}

	if retryable, ok := classifyNetworkError(err); ok {
		return retryable
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Code >= 400 {
		return IsRetryableStatus(rich.Code)
	}

	return matchesTransientMessage(err.Error())
}

func classifyNetworkError(err error) (bool, bool) {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true, true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true, true
	}
	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ETIMEDOUT),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true, true
	}
	return false, false
}

var transientPatterns = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"broken pipe",
	"no such host",
	"temporary failure",
	"too many requests",
	"rate limit",
	"service unavailable",
	"bad gateway",
	"gateway timeout",
}

func matchesTransientMessage(message string) bool {
	message = strings.ToLower(strings.TrimSpace(message))
	if message == "" {
		return false
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}

// ParseRetryAfter reads a Retry-After header value given either as delta
// seconds or as an HTTP date. Unparseable or past values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0
	}
	if delay := at.Sub(now); delay > 0 {
		return delay
	}
	return 0
}
