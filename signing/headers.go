package signing

import (
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	HeaderUserAgent   = "User-Agent"
	HeaderContentType = "Content-Type"
	HeaderWebhookID   = "X-Webhook-ID"
	HeaderDeliveryID  = "X-Webhook-Delivery"
	HeaderTimestamp   = "X-Webhook-Timestamp"

	DefaultSignatureHeader = "X-Signature"
	DefaultUserAgent       = "go-hookdelivery/1.0"
)

// HeaderConfig describes everything needed to build one attempt's headers.
type HeaderConfig struct {
	WebhookID       string
	DeliveryID      string
	UserAgent       string
	Secret          string
	SignatureHeader string
	Static          map[string]string
	Body            []byte
	Timestamp       time.Time
	// LookupEnv resolves {{env.NAME}} placeholders in static header values.
	// Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// BuildHeaders merges, in order of increasing precedence: User-Agent,
// Content-Type, X-Webhook-ID, X-Webhook-Delivery, X-Webhook-Timestamp,
// static headers, extra headers. The signature header is written last and
// only when a secret is present.
func BuildHeaders(cfg HeaderConfig, extra map[string]string) map[string]string {
	headers := map[string]string{}
	set := func(key string, value string) {
		key = strings.TrimSpace(key)
		if key == "" {
			return
		}
		headers[http.CanonicalHeaderKey(key)] = value
	}

	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	set(HeaderUserAgent, userAgent)
	set(HeaderContentType, "application/json")
	if id := strings.TrimSpace(cfg.WebhookID); id != "" {
		set(HeaderWebhookID, id)
	}
	if id := strings.TrimSpace(cfg.DeliveryID); id != "" {
		set(HeaderDeliveryID, id)
	}
	if !cfg.Timestamp.IsZero() {
		set(HeaderTimestamp, cfg.Timestamp.UTC().Format(time.RFC3339))
	}

	lookup := cfg.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for key, value := range cfg.Static {
		set(key, ResolveEnv(value, lookup))
	}
	for key, value := range extra {
		set(key, value)
	}

	if cfg.Secret != "" {
		name := strings.TrimSpace(cfg.SignatureHeader)
		if name == "" {
			name = DefaultSignatureHeader
		}
		set(name, Sign(cfg.Body, cfg.Secret))
	}
	return headers
}

// ResolveEnv replaces every {{env.NAME}} in value with the looked-up value.
// Unknown variables resolve to an empty string. Substituted values are not
// scanned again.
func ResolveEnv(value string, lookup func(string) (string, bool)) string {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	const open, closing = "{{env.", "}}"
	var out strings.Builder
	rest := value
	for {
		start := strings.Index(rest, open)
		if start == -1 {
			break
		}
		end := strings.Index(rest[start:], closing)
		if end == -1 {
			break
		}
		end += start
		name := strings.TrimSpace(rest[start+len(open) : end])
		resolved, _ := lookup(name)
		out.WriteString(rest[:start])
		out.WriteString(resolved)
		rest = rest[end+len(closing):]
	}
	out.WriteString(rest)
	return out.String()
}
