package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hookdelivery/retry"
	"github.com/goliatone/go-hookdelivery/signing"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// Coordinator owns the delivery lifecycle: enqueue, attempt, classify and
// persist. It holds no per-delivery timers; due-ness is derived from the
// persisted NextRetryAt.
type Coordinator struct {
	config             Config
	logger             Logger
	loggerProvider     LoggerProvider
	metricsRecorder    MetricsRecorder
	errorMapper        ErrorMapper
	persistenceClient  any
	repositoryFactory  any
	configProvider     ConfigProvider
	optionsResolver    OptionsResolver
	deliveryStore      DeliveryStore
	configStore        ConfigStore
	transport          Transport
	conditionEvaluator ConditionEvaluator
	calculator         *retry.Calculator
	now                func() time.Time
	newID              func() string
}

type CoordinatorDependencies struct {
	Logger             Logger
	LoggerProvider     LoggerProvider
	MetricsRecorder    MetricsRecorder
	ErrorMapper        ErrorMapper
	PersistenceClient  any
	RepositoryFactory  any
	ConfigProvider     ConfigProvider
	OptionsResolver    OptionsResolver
	DeliveryStore      DeliveryStore
	ConfigStore        ConfigStore
	Transport          Transport
	ConditionEvaluator ConditionEvaluator
}

func NewCoordinator(cfg Config, opts ...Option) (*Coordinator, error) {
	builder := defaultCoordinatorBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("hookdelivery", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil && builder.logger == nil {
		if named := provider.GetLogger("hookdelivery"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.conditionEvaluator == nil {
		builder.conditionEvaluator = NewExprConditionEvaluator()
	}
	if builder.calculator == nil {
		builder.calculator = retry.DefaultCalculator()
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}
	if builder.newID == nil {
		builder.newID = uuid.NewString
	}
	if builder.transport == nil {
		return nil, mapBuildError(builder.errorMapper, validationError(
			"core: transport is required",
			goerrors.FieldError{Field: "transport", Message: "is required"},
		))
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig = finalConfig.withDefaults()

	if (builder.deliveryStore == nil || builder.configStore == nil) && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			builder.applyStores(stores)
		} else if stores, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.applyStores(stores)
		}
	}
	if builder.deliveryStore == nil {
		builder.deliveryStore = NewMemoryDeliveryStore()
	}
	if builder.configStore == nil {
		builder.configStore = NewMemoryConfigStore()
	}

	return &Coordinator{
		config:             finalConfig,
		logger:             logger,
		loggerProvider:     provider,
		metricsRecorder:    builder.metricsRecorder,
		errorMapper:        builder.errorMapper,
		persistenceClient:  builder.persistenceClient,
		repositoryFactory:  builder.repositoryFactory,
		configProvider:     builder.configProvider,
		optionsResolver:    builder.optionsResolver,
		deliveryStore:      builder.deliveryStore,
		configStore:        builder.configStore,
		transport:          builder.transport,
		conditionEvaluator: builder.conditionEvaluator,
		calculator:         builder.calculator,
		now:                builder.now,
		newID:              builder.newID,
	}, nil
}

func (b *coordinatorBuilder) applyStores(stores StoreProvider) {
	if stores == nil {
		return
	}
	if b.deliveryStore == nil {
		b.deliveryStore = stores.DeliveryStore()
	}
	if b.configStore == nil {
		b.configStore = stores.ConfigStore()
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (c *Coordinator) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.config
}

func (c *Coordinator) Dependencies() CoordinatorDependencies {
	if c == nil {
		return CoordinatorDependencies{}
	}
	return CoordinatorDependencies{
		Logger:             c.logger,
		LoggerProvider:     c.loggerProvider,
		MetricsRecorder:    c.metricsRecorder,
		ErrorMapper:        c.errorMapper,
		PersistenceClient:  c.persistenceClient,
		RepositoryFactory:  c.repositoryFactory,
		ConfigProvider:     c.configProvider,
		OptionsResolver:    c.optionsResolver,
		DeliveryStore:      c.deliveryStore,
		ConfigStore:        c.configStore,
		Transport:          c.transport,
		ConditionEvaluator: c.conditionEvaluator,
	}
}

// Enqueue creates a PENDING delivery for cfg. A repeated idempotency key
// returns the existing record, except that a FAILED or DEAD_LETTER record is
// re-armed with the new payload.
func (c *Coordinator) Enqueue(
	ctx context.Context,
	cfg WebhookConfig,
	payload []byte,
	idempotencyKey string,
) (delivery WebhookDelivery, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"webhook_id":      strings.TrimSpace(cfg.ID),
		"idempotency_key": strings.TrimSpace(idempotencyKey),
	}
	defer func() {
		if delivery.ID != "" {
			fields["delivery_id"] = delivery.ID
		}
		c.observeOperation(ctx, startedAt, opEnqueue, err, fields)
	}()

	var outcome enqueueOutcome
	delivery, outcome, err = c.enqueue(ctx, cfg, payload, idempotencyKey)
	if outcome != "" {
		fields["outcome"] = string(outcome)
	}
	return delivery, err
}

type enqueueOutcome string

const (
	enqueueCreated   enqueueOutcome = "created"
	enqueueDuplicate enqueueOutcome = "duplicate"
	enqueueRearmed   enqueueOutcome = "rearmed"
)

func (c *Coordinator) enqueue(
	ctx context.Context,
	cfg WebhookConfig,
	payload []byte,
	idempotencyKey string,
) (WebhookDelivery, enqueueOutcome, error) {
	if err := c.requireStore(); err != nil {
		return WebhookDelivery{}, "", err
	}
	cfg = cfg.Normalized(c.config.DefaultRetry)
	if err := cfg.Validate(); err != nil {
		return WebhookDelivery{}, "", c.mapError(err)
	}
	if !cfg.Enabled {
		return WebhookDelivery{}, "", c.mapError(newDeliveryError(
			fmt.Sprintf("core: webhook %q is disabled", cfg.ID),
			goerrors.CategoryOperation,
			DeliveryErrorConfigDisabled,
		).WithMetadata(map[string]any{"webhook_id": cfg.ID}))
	}
	if err := c.checkCondition(ctx, cfg, payload); err != nil {
		return WebhookDelivery{}, "", err
	}

	now := c.now()
	record := c.newDelivery(cfg, payload, idempotencyKey, now)
	stored, existed, createErr := c.deliveryStore.CreateOrGet(ctx, record)
	if createErr != nil {
		return WebhookDelivery{}, "", c.mapError(createErr)
	}
	if !existed {
		return stored, enqueueCreated, nil
	}
	if !stored.Status.IsFailure() {
		return stored, enqueueDuplicate, nil
	}

	rearmed := stored.Clone()
	if err := rearmed.Reset(now); err != nil {
		return stored, "", c.mapError(err)
	}
	c.applyConfig(&rearmed, cfg, payload)
	saved, saveErr := c.deliveryStore.Save(ctx, rearmed)
	if saveErr != nil {
		return stored, "", c.mapError(saveErr)
	}
	return saved, enqueueRearmed, nil
}

// EnqueueForWebhook loads a registered webhook config and enqueues payload
// for it.
func (c *Coordinator) EnqueueForWebhook(
	ctx context.Context,
	webhookID string,
	payload []byte,
	idempotencyKey string,
) (WebhookDelivery, error) {
	if c == nil || c.configStore == nil {
		return WebhookDelivery{}, storeNotConfiguredError("config")
	}
	cfg, err := c.configStore.Get(ctx, strings.TrimSpace(webhookID))
	if err != nil {
		return WebhookDelivery{}, c.mapError(err)
	}
	return c.Enqueue(ctx, cfg, payload, idempotencyKey)
}

// EnqueueEvent fans payload out to every registered webhook listening on
// event. Disabled webhooks and unmet conditions are skipped. Each delivery
// gets the idempotency key "<key>:<webhook id>" when key is set.
func (c *Coordinator) EnqueueEvent(
	ctx context.Context,
	event string,
	payload []byte,
	idempotencyKey string,
) (deliveries []WebhookDelivery, err error) {
	startedAt := time.Now().UTC()
	event = strings.TrimSpace(event)
	fields := map[string]any{"event": event}
	defer func() {
		fields["deliveries"] = len(deliveries)
		c.observeOperation(ctx, startedAt, opEnqueueEvent, err, fields)
	}()

	if c == nil || c.configStore == nil {
		err = storeNotConfiguredError("config")
		return nil, err
	}
	if event == "" {
		err = c.mapError(validationError("core: event is required", goerrors.FieldError{
			Field:   "event",
			Message: "is required",
		}))
		return nil, err
	}
	configs, listErr := c.configStore.ListByEvent(ctx, event)
	if listErr != nil {
		err = c.mapError(listErr)
		return nil, err
	}

	errs := []error{}
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		key := strings.TrimSpace(idempotencyKey)
		if key != "" {
			key = key + ":" + cfg.ID
		}
		delivery, enqueueErr := c.Enqueue(ctx, cfg, payload, key)
		if enqueueErr != nil {
			if hasTextCode(enqueueErr, DeliveryErrorConditionNotMet) {
				continue
			}
			errs = append(errs, enqueueErr)
			continue
		}
		deliveries = append(deliveries, delivery)
	}
	err = goerrors.Join(errs...)
	return deliveries, err
}

// Deliver enqueues and attempts the record once immediately when this call
// created or re-armed it. A duplicate key returns the existing record
// untouched, and a record another worker already leased is left to that
// worker.
func (c *Coordinator) Deliver(
	ctx context.Context,
	cfg WebhookConfig,
	payload []byte,
	idempotencyKey string,
) (delivery WebhookDelivery, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"webhook_id":      strings.TrimSpace(cfg.ID),
		"idempotency_key": strings.TrimSpace(idempotencyKey),
	}
	var outcome enqueueOutcome
	delivery, outcome, err = c.enqueue(ctx, cfg, payload, idempotencyKey)
	if delivery.ID != "" {
		fields["delivery_id"] = delivery.ID
	}
	if outcome != "" {
		fields["outcome"] = string(outcome)
	}
	c.observeOperation(ctx, startedAt, opEnqueue, err, fields)
	if err != nil || outcome == enqueueDuplicate {
		return delivery, err
	}

	claimed, claimErr := c.deliveryStore.Claim(ctx, delivery.ID, c.now(), c.config.Dispatch.Lease)
	if claimErr != nil {
		if IsNotDue(claimErr) {
			return claimed, nil
		}
		return delivery, c.mapError(claimErr)
	}
	return c.Attempt(ctx, claimed)
}

// ProcessDue selects the records that may be attempted at now.
func (c *Coordinator) ProcessDue(records []WebhookDelivery, now time.Time) []WebhookDelivery {
	return SelectDue(records, now)
}

// Attempt performs one delivery attempt and persists the resulting state.
// The caller must hold the record's lease (ClaimDue or Claim); AttemptByID
// and DispatchDue take it themselves.
// Endpoint and transport failures are captured on the record; the returned
// error reports only store failures or records that cannot be attempted.
func (c *Coordinator) Attempt(ctx context.Context, record WebhookDelivery) (result WebhookDelivery, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"delivery_id": record.ID,
		"webhook_id":  record.WebhookID,
	}
	defer func() {
		c.observeOperation(ctx, startedAt, opAttempt, err, fields)
	}()

	if err = c.requireStore(); err != nil {
		return record, err
	}

	working := record.Clone()
	now := c.now()
	if err = working.RecordAttempt(now); err != nil {
		err = c.mapError(err)
		return record, err
	}
	fields["attempt"] = working.Attempts

	request := c.buildRequest(ctx, working, now)
	c.logDebug(ctx, "sending webhook", map[string]any{
		"delivery_id": working.ID,
		"url":         working.URL,
		"method":      working.Method,
		"headers":     RedactHeaders(request.Headers),
	})
	response, sendErr := c.transport.Send(ctx, request)
	if sendErr != nil && ctx != nil && ctx.Err() != nil && goerrors.Is(sendErr, ctx.Err()) {
		// The caller gave up; leave the record for the next claim.
		err = c.mapError(sendErr)
		return record, err
	}

	completedAt := c.now()
	outcome := AttemptOutcome{
		StatusCode: response.StatusCode,
		Body:       truncateBody(response.Body, c.config.ResponseBodyLimit),
	}
	maxAttempts := working.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = working.Retry.Policy().Normalize().MaxAttempts
	}

	var transitionErr error
	switch {
	case sendErr == nil && isSuccessStatus(response.StatusCode):
		transitionErr = working.MarkDelivered(completedAt, outcome)
	default:
		retryable := false
		var retryAfter time.Duration
		if sendErr != nil {
			outcome.Error = storableText(errorMessage(sendErr))
			retryable = retry.IsRetryableError(sendErr)
		} else {
			outcome.Error = fmt.Sprintf("HTTP %d", response.StatusCode)
			retryable = retry.IsRetryableStatus(response.StatusCode)
			if response.StatusCode == http.StatusTooManyRequests || response.StatusCode == http.StatusServiceUnavailable {
				retryAfter = retry.ParseRetryAfter(headerValue(response.Headers, "Retry-After"), completedAt)
			}
		}
		switch {
		case retryable && working.Attempts < maxAttempts:
			delay := c.calculator.Delay(working.Attempts, working.Retry.Policy())
			if retryAfter > delay {
				delay = retryAfter
			}
			fields["retry_in_ms"] = delay.Milliseconds()
			transitionErr = working.MarkRetrying(completedAt, completedAt.Add(delay), outcome)
		case retryable:
			transitionErr = working.MarkDeadLetter(completedAt, outcome)
		default:
			transitionErr = working.MarkFailed(completedAt, outcome)
		}
	}
	if transitionErr != nil {
		err = c.mapError(transitionErr)
		return record, err
	}
	fields["outcome"] = strings.ToLower(string(working.Status))
	if outcome.StatusCode != 0 {
		fields["response_status"] = outcome.StatusCode
	}

	saved, saveErr := c.deliveryStore.Save(ctx, working)
	if saveErr != nil {
		err = c.mapError(saveErr)
		return working, err
	}
	return saved, nil
}

// AttemptByID leases delivery id and attempts it. A record that is settled,
// scheduled for later, or leased elsewhere is returned unchanged with a
// DeliveryErrorNotDue error and nothing is sent.
func (c *Coordinator) AttemptByID(ctx context.Context, id string) (WebhookDelivery, error) {
	if err := c.requireStore(); err != nil {
		return WebhookDelivery{}, err
	}
	record, err := c.deliveryStore.Claim(ctx, strings.TrimSpace(id), c.now(), c.config.Dispatch.Lease)
	if err != nil {
		return record, c.mapError(err)
	}
	return c.Attempt(ctx, record)
}

// DispatchDue claims up to limit due records and attempts each one. A
// failing record never stops the batch; all errors are joined.
func (c *Coordinator) DispatchDue(ctx context.Context, limit int) (stats DispatchStats, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		fields["claimed"] = stats.Claimed
		fields["delivered"] = stats.Delivered
		fields["retried"] = stats.Retried
		fields["failed"] = stats.Failed
		fields["dead_lettered"] = stats.DeadLettered
		c.observeOperation(ctx, startedAt, opDispatchDue, err, fields)
	}()

	if err = c.requireStore(); err != nil {
		return DispatchStats{}, err
	}
	if limit <= 0 {
		limit = c.config.Dispatch.BatchSize
	}
	claimed, claimErr := c.deliveryStore.ClaimDue(ctx, c.now(), limit, c.config.Dispatch.Lease)
	if claimErr != nil {
		err = c.mapError(claimErr)
		return DispatchStats{}, err
	}
	stats.Claimed = len(claimed)

	errs := []error{}
	for _, record := range claimed {
		if ctx != nil && ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		result, attemptErr := c.Attempt(ctx, record)
		if attemptErr != nil {
			c.logWarn(ctx, "dispatch attempt failed", map[string]any{
				"delivery_id": record.ID,
				"error":       attemptErr.Error(),
			})
			errs = append(errs, attemptErr)
			continue
		}
		switch result.Status {
		case DeliveryStatusDelivered:
			stats.Delivered++
		case DeliveryStatusRetrying:
			stats.Retried++
		case DeliveryStatusFailed:
			stats.Failed++
		case DeliveryStatusDeadLetter:
			stats.DeadLettered++
		}
	}
	err = goerrors.Join(errs...)
	return stats, err
}

// Reset returns a FAILED or DEAD_LETTER delivery to PENDING with a fresh
// attempt budget.
func (c *Coordinator) Reset(ctx context.Context, id string) (delivery WebhookDelivery, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"delivery_id": strings.TrimSpace(id)}
	defer func() {
		c.observeOperation(ctx, startedAt, opReset, err, fields)
	}()

	if err = c.requireStore(); err != nil {
		return WebhookDelivery{}, err
	}
	record, getErr := c.deliveryStore.Get(ctx, strings.TrimSpace(id))
	if getErr != nil {
		err = c.mapError(getErr)
		return WebhookDelivery{}, err
	}
	fields["webhook_id"] = record.WebhookID
	if err = record.Reset(c.now()); err != nil {
		err = c.mapError(err)
		return record, err
	}
	delivery, err = c.deliveryStore.Save(ctx, record)
	if err != nil {
		err = c.mapError(err)
		return record, err
	}
	return delivery, nil
}

// Abandon marks an active delivery FAILED out of band.
func (c *Coordinator) Abandon(ctx context.Context, id string, reason string) (delivery WebhookDelivery, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"delivery_id": strings.TrimSpace(id)}
	defer func() {
		c.observeOperation(ctx, startedAt, opAbandon, err, fields)
	}()

	if err = c.requireStore(); err != nil {
		return WebhookDelivery{}, err
	}
	record, getErr := c.deliveryStore.Get(ctx, strings.TrimSpace(id))
	if getErr != nil {
		err = c.mapError(getErr)
		return WebhookDelivery{}, err
	}
	fields["webhook_id"] = record.WebhookID
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "abandoned"
	}
	if err = record.MarkFailed(c.now(), AttemptOutcome{
		StatusCode: record.ResponseStatus,
		Body:       record.ResponseBody,
		Error:      reason,
	}); err != nil {
		err = c.mapError(err)
		return record, err
	}
	delivery, err = c.deliveryStore.Save(ctx, record)
	if err != nil {
		err = c.mapError(err)
		return record, err
	}
	return delivery, nil
}

func (c *Coordinator) Get(ctx context.Context, id string) (WebhookDelivery, error) {
	if err := c.requireStore(); err != nil {
		return WebhookDelivery{}, err
	}
	record, err := c.deliveryStore.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return WebhookDelivery{}, c.mapError(err)
	}
	return record, nil
}

func (c *Coordinator) List(ctx context.Context, filter DeliveryFilter) ([]WebhookDelivery, error) {
	if err := c.requireStore(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, c.mapError(err)
	}
	records, err := c.deliveryStore.List(ctx, filter)
	if err != nil {
		return nil, c.mapError(err)
	}
	return Filter(records, filter), nil
}

// Stats aggregates every record matching filter; Limit is ignored.
func (c *Coordinator) Stats(ctx context.Context, filter DeliveryFilter) (WebhookStats, error) {
	filter.Limit = 0
	records, err := c.List(ctx, filter)
	if err != nil {
		return WebhookStats{}, err
	}
	return Aggregate(records), nil
}

// RegisterWebhook validates and stores an endpoint config for later
// EnqueueForWebhook and EnqueueEvent calls.
func (c *Coordinator) RegisterWebhook(ctx context.Context, cfg WebhookConfig) (WebhookConfig, error) {
	if c == nil || c.configStore == nil {
		return WebhookConfig{}, storeNotConfiguredError("config")
	}
	cfg = cfg.Normalized(c.config.DefaultRetry)
	if err := cfg.Validate(); err != nil {
		return WebhookConfig{}, c.mapError(err)
	}
	if compiler, ok := c.conditionEvaluator.(ConditionCompiler); ok && cfg.Condition != "" {
		if err := compiler.Compile(cfg.Condition); err != nil {
			return WebhookConfig{}, c.mapError(err)
		}
	}
	stored, err := c.configStore.Upsert(ctx, cfg)
	if err != nil {
		return WebhookConfig{}, c.mapError(err)
	}
	return stored, nil
}

func (c *Coordinator) RemoveWebhook(ctx context.Context, id string) error {
	if c == nil || c.configStore == nil {
		return storeNotConfiguredError("config")
	}
	if err := c.configStore.Delete(ctx, strings.TrimSpace(id)); err != nil {
		return c.mapError(err)
	}
	return nil
}

func (c *Coordinator) newDelivery(cfg WebhookConfig, payload []byte, idempotencyKey string, now time.Time) WebhookDelivery {
	id := c.newID()
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		key = id
	}
	record := WebhookDelivery{
		ID:             id,
		IdempotencyKey: key,
		Status:         DeliveryStatusPending,
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}
	c.applyConfig(&record, cfg, payload)
	return record
}

func (c *Coordinator) applyConfig(record *WebhookDelivery, cfg WebhookConfig, payload []byte) {
	record.WebhookID = cfg.ID
	record.URL = cfg.URL
	record.Method = cfg.Method
	record.Payload = append([]byte(nil), payload...)
	record.Retry = cfg.Retry
	record.MaxAttempts = cfg.Retry.MaxAttempts
	record.Timeout = cfg.Timeout
	record.Headers = signing.BuildHeaders(signing.HeaderConfig{
		WebhookID:       cfg.ID,
		DeliveryID:      record.ID,
		UserAgent:       c.config.UserAgent,
		Secret:          cfg.Secret,
		SignatureHeader: cfg.SignatureHeader,
		Static:          cfg.Headers,
		Body:            record.Payload,
	}, nil)
}

// buildRequest stamps the per-attempt timestamp and re-signs with the
// registered secret when one is available, so rotated secrets apply to
// pending retries.
func (c *Coordinator) buildRequest(ctx context.Context, record WebhookDelivery, now time.Time) TransportRequest {
	headers := copyStringMap(record.Headers)
	headers[http.CanonicalHeaderKey(signing.HeaderTimestamp)] = now.UTC().Format(time.RFC3339)

	if c.configStore != nil && record.WebhookID != "" {
		cfg, err := c.configStore.Get(ctx, record.WebhookID)
		switch {
		case err == nil && cfg.Secret != "":
			name := strings.TrimSpace(cfg.SignatureHeader)
			if name == "" {
				name = signing.DefaultSignatureHeader
			}
			headers[http.CanonicalHeaderKey(name)] = signing.Sign(record.Payload, cfg.Secret)
		case err != nil && !IsNotFound(err):
			c.logWarn(ctx, "webhook config lookup failed, reusing stored signature", map[string]any{
				"delivery_id": record.ID,
				"webhook_id":  record.WebhookID,
				"error":       err.Error(),
			})
		}
	}

	timeout := record.Timeout
	if timeout <= 0 {
		timeout = c.config.RequestTimeout
	}
	return TransportRequest{
		Method:               normalizeMethod(record.Method),
		URL:                  record.URL,
		Headers:              headers,
		Body:                 append([]byte(nil), record.Payload...),
		Timeout:              timeout,
		MaxResponseBodyBytes: c.config.ResponseBodyLimit,
	}
}

func (c *Coordinator) checkCondition(ctx context.Context, cfg WebhookConfig, payload []byte) error {
	if cfg.Condition == "" {
		return nil
	}
	ok, err := c.conditionEvaluator.Evaluate(ctx, cfg.Condition, conditionEnv(cfg, payload))
	if err != nil {
		return c.mapError(err)
	}
	if !ok {
		return c.mapError(newDeliveryError(
			fmt.Sprintf("core: condition for webhook %q not met", cfg.ID),
			goerrors.CategoryOperation,
			DeliveryErrorConditionNotMet,
		).WithMetadata(map[string]any{"webhook_id": cfg.ID}))
	}
	return nil
}

// conditionEnv exposes the decoded payload both as "payload" and, for JSON
// objects, as top-level variables.
func conditionEnv(cfg WebhookConfig, payload []byte) map[string]any {
	env := map[string]any{}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		decoded = string(payload)
	}
	if object, ok := decoded.(map[string]any); ok {
		for key, value := range object {
			env[key] = value
		}
	}
	env["payload"] = decoded
	env["event"] = cfg.Event
	env["webhook_id"] = cfg.ID
	return env
}

func (c *Coordinator) requireStore() error {
	if c == nil || c.deliveryStore == nil {
		return storeNotConfiguredError("delivery")
	}
	if c.transport == nil {
		return validationError("core: transport is required", goerrors.FieldError{Field: "transport", Message: "is required"})
	}
	return nil
}

func (c *Coordinator) mapError(err error) error {
	if err == nil {
		return nil
	}
	if c == nil || c.errorMapper == nil {
		return err
	}
	mapped := c.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func storeNotConfiguredError(kind string) error {
	return newDeliveryError(
		"core: "+kind+" store is not configured",
		goerrors.CategoryInternal,
		DeliveryErrorStoreNotConfigured,
	)
}

// SelectDue returns the active records whose NextRetryAt is unset or not
// after now, ordered by NextRetryAt (CreatedAt when unset), then ID.
func SelectDue(records []WebhookDelivery, now time.Time) []WebhookDelivery {
	due := make([]WebhookDelivery, 0, len(records))
	for _, record := range records {
		if record.IsDue(now) {
			due = append(due, record.Clone())
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		left, right := dueAt(due[i]), dueAt(due[j])
		if !left.Equal(right) {
			return left.Before(right)
		}
		return due[i].ID < due[j].ID
	})
	return due
}

func dueAt(record WebhookDelivery) time.Time {
	if record.NextRetryAt != nil {
		return *record.NextRetryAt
	}
	return record.CreatedAt
}

func isSuccessStatus(code int) bool {
	return code >= 200 && code < 300
}

// truncateBody returns at most limit bytes of body as text a TEXT column
// accepts: cut on a rune boundary, invalid sequences replaced, NULs dropped.
func truncateBody(body []byte, limit int64) string {
	if limit > 0 && int64(len(body)) > limit {
		body = CutAtRune(body, limit)
	}
	return storableText(string(body))
}

// CutAtRune returns the first limit bytes of body, minus a trailing rune the
// cut would split.
func CutAtRune(body []byte, limit int64) []byte {
	if limit < 0 || int64(len(body)) <= limit {
		return body
	}
	body = body[:limit]
	start := len(body) - 1
	for start > 0 && start > len(body)-utf8.UTFMax && !utf8.RuneStart(body[start]) {
		start--
	}
	if start >= 0 && !utf8.FullRune(body[start:]) {
		body = body[:start]
	}
	return body
}

func storableText(value string) string {
	value = strings.ToValidUTF8(value, "\uFFFD")
	return strings.ReplaceAll(value, "\x00", "")
}

func headerValue(headers map[string]string, name string) string {
	if value, ok := headers[http.CanonicalHeaderKey(name)]; ok {
		return value
	}
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		message := strings.TrimSpace(rich.Message)
		if rich.Source != nil {
			if message == "" {
				return rich.Source.Error()
			}
			return message + ": " + rich.Source.Error()
		}
		if message != "" {
			return message
		}
	}
	return err.Error()
}

func hasTextCode(err error, textCode string) bool {
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.TextCode == textCode
}
