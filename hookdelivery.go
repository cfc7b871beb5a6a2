// Package hookdelivery delivers signed webhook notifications with persisted
// retry state. The core package owns the delivery lifecycle; this package
// re-exports its surface and wires the default HTTP transport.
package hookdelivery

import (
	"github.com/goliatone/go-hookdelivery/core"
	"github.com/goliatone/go-hookdelivery/signing"
	"github.com/goliatone/go-hookdelivery/transport"
)

type Config = core.Config
type DispatchConfig = core.DispatchConfig
type RetryConfig = core.RetryConfig

type Option = core.Option

type Coordinator = core.Coordinator
type CoordinatorDependencies = core.CoordinatorDependencies

type WebhookConfig = core.WebhookConfig
type WebhookDelivery = core.WebhookDelivery
type DeliveryStatus = core.DeliveryStatus
type DeliveryFilter = core.DeliveryFilter
type WebhookStats = core.WebhookStats
type WebhookBreakdown = core.WebhookBreakdown
type DispatchStats = core.DispatchStats

type DeliveryStore = core.DeliveryStore
type ConfigStore = core.ConfigStore
type Transport = core.Transport
type MetricsRecorder = core.MetricsRecorder

const (
	StatusPending    = core.DeliveryStatusPending
	StatusRetrying   = core.DeliveryStatusRetrying
	StatusDelivered  = core.DeliveryStatusDelivered
	StatusFailed     = core.DeliveryStatusFailed
	StatusDeadLetter = core.DeliveryStatusDeadLetter
)

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithPersistenceClient  = core.WithPersistenceClient
	WithRepositoryFactory  = core.WithRepositoryFactory
	WithDeliveryStore      = core.WithDeliveryStore
	WithConfigStore        = core.WithConfigStore
	WithTransport          = core.WithTransport
	WithConditionEvaluator = core.WithConditionEvaluator
	WithCalculator         = core.WithCalculator
	WithClock              = core.WithClock
	WithIDGenerator        = core.WithIDGenerator
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func DefaultRetryConfig() RetryConfig {
	return core.DefaultRetryConfig()
}

// NewCoordinator builds a coordinator that sends over net/http unless
// WithTransport is given.
func NewCoordinator(cfg Config, opts ...Option) (*Coordinator, error) {
	withDefaults := make([]Option, 0, len(opts)+1)
	withDefaults = append(withDefaults, core.WithTransport(transport.NewHTTPTransport(nil)))
	withDefaults = append(withDefaults, opts...)
	return core.NewCoordinator(cfg, withDefaults...)
}

// Sign returns the "sha256=<hex>" HMAC signature of body under secret.
func Sign(body []byte, secret string) string {
	return signing.Sign(body, secret)
}

// Verify checks a signature produced by Sign in constant time.
func Verify(body []byte, secret string, signature string) bool {
	return signing.Verify(body, secret, signature)
}
