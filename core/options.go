package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hookdelivery/retry"
	opts "github.com/goliatone/go-options"
	"github.com/google/uuid"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type coordinatorBuilder struct {
	runtimeConfig      Config
	logger             Logger
	loggerProvider     LoggerProvider
	metricsRecorder    MetricsRecorder
	errorMapper        ErrorMapper
	configProvider     ConfigProvider
	optionsResolver    OptionsResolver
	persistenceClient  any
	repositoryFactory  any
	deliveryStore      DeliveryStore
	configStore        ConfigStore
	transport          Transport
	conditionEvaluator ConditionEvaluator
	calculator         *retry.Calculator
	now                func() time.Time
	newID              func() string
}

type Option func(*coordinatorBuilder)

func WithLogger(logger Logger) Option {
	return func(b *coordinatorBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *coordinatorBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *coordinatorBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *coordinatorBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *coordinatorBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *coordinatorBuilder) {
		b.optionsResolver = resolver
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *coordinatorBuilder) {
		b.persistenceClient = client
	}
}

// WithRepositoryFactory supplies a RepositoryStoreFactory used to build the
// delivery and config stores from the persistence client when they are not
// set explicitly.
func WithRepositoryFactory(factory any) Option {
	return func(b *coordinatorBuilder) {
		b.repositoryFactory = factory
	}
}

func WithDeliveryStore(store DeliveryStore) Option {
	return func(b *coordinatorBuilder) {
		b.deliveryStore = store
	}
}

func WithConfigStore(store ConfigStore) Option {
	return func(b *coordinatorBuilder) {
		b.configStore = store
	}
}

func WithTransport(transport Transport) Option {
	return func(b *coordinatorBuilder) {
		b.transport = transport
	}
}

func WithConditionEvaluator(evaluator ConditionEvaluator) Option {
	return func(b *coordinatorBuilder) {
		b.conditionEvaluator = evaluator
	}
}

func WithCalculator(calculator *retry.Calculator) Option {
	return func(b *coordinatorBuilder) {
		b.calculator = calculator
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *coordinatorBuilder) {
		b.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(b *coordinatorBuilder) {
		b.newID = newID
	}
}

func defaultCoordinatorBuilder(runtime Config) coordinatorBuilder {
	return coordinatorBuilder{
		runtimeConfig:      runtime,
		metricsRecorder:    NopMetricsRecorder{},
		errorMapper:        defaultErrorMapper,
		configProvider:     NewCfgxConfigProvider(nil),
		optionsResolver:    GoOptionsResolver{},
		conditionEvaluator: NewExprConditionEvaluator(),
		now: func() time.Time {
			return time.Now().UTC()
		},
		newID: uuid.NewString,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return deliveryErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults < loaded config < runtime config.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.UserAgent) != "" {
		layer["user_agent"] = cfg.UserAgent
	}
	if includeZero || cfg.RequestTimeout != 0 {
		layer["request_timeout"] = cfg.RequestTimeout
	}
	if includeZero || cfg.ResponseBodyLimit != 0 {
		layer["response_body_limit"] = cfg.ResponseBodyLimit
	}

	retryLayer := map[string]any{}
	if includeZero || cfg.DefaultRetry.MaxAttempts != 0 {
		retryLayer["max_attempts"] = cfg.DefaultRetry.MaxAttempts
	}
	if includeZero || cfg.DefaultRetry.InitialDelay != 0 {
		retryLayer["initial_delay"] = cfg.DefaultRetry.InitialDelay
	}
	if includeZero || cfg.DefaultRetry.MaxDelay != 0 {
		retryLayer["max_delay"] = cfg.DefaultRetry.MaxDelay
	}
	if includeZero || cfg.DefaultRetry.BackoffMultiplier != 0 {
		retryLayer["backoff_multiplier"] = cfg.DefaultRetry.BackoffMultiplier
	}
	if includeZero || cfg.DefaultRetry.JitterFactor != 0 {
		retryLayer["jitter_factor"] = cfg.DefaultRetry.JitterFactor
	}
	if len(retryLayer) > 0 {
		layer["default_retry"] = retryLayer
	}

	dispatchLayer := map[string]any{}
	if includeZero || cfg.Dispatch.BatchSize != 0 {
		dispatchLayer["batch_size"] = cfg.Dispatch.BatchSize
	}
	if includeZero || cfg.Dispatch.Lease != 0 {
		dispatchLayer["lease"] = cfg.Dispatch.Lease
	}
	if includeZero || strings.TrimSpace(cfg.Dispatch.Schedule) != "" {
		dispatchLayer["schedule"] = cfg.Dispatch.Schedule
	}
	if len(dispatchLayer) > 0 {
		layer["dispatch"] = dispatchLayer
	}
	return layer
}
