package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-hookdelivery/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type DeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryRecord]
}

func NewDeliveryStore(db *bun.DB) (*DeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryRecord](db, deliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery repository wiring: %w", err)
		}
	}
	return &DeliveryStore{db: db, repo: repo}, nil
}

// CreateOrGet inserts delivery and falls back to the stored row when the
// idempotency key unique index rejects the insert.
func (s *DeliveryStore) CreateOrGet(ctx context.Context, delivery core.WebhookDelivery) (core.WebhookDelivery, bool, error) {
	if s == nil || s.db == nil {
		return core.WebhookDelivery{}, false, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	delivery.ID = strings.TrimSpace(delivery.ID)
	if delivery.ID == "" {
		return core.WebhookDelivery{}, false, fmt.Errorf("sqlstore: delivery id is required")
	}
	delivery.IdempotencyKey = strings.TrimSpace(delivery.IdempotencyKey)
	if delivery.IdempotencyKey == "" {
		delivery.IdempotencyKey = delivery.ID
	}
	delivery.Version = 1
	if delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = time.Now().UTC()
	}
	if delivery.UpdatedAt.IsZero() {
		delivery.UpdatedAt = delivery.CreatedAt
	}

	record := newDeliveryRecord(delivery)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.GetByIdempotencyKey(ctx, delivery.IdempotencyKey)
			if getErr != nil {
				return core.WebhookDelivery{}, false, getErr
			}
			return existing, true, nil
		}
		return core.WebhookDelivery{}, false, err
	}
	return record.toDomain(), false, nil
}

func (s *DeliveryStore) Get(ctx context.Context, id string) (core.WebhookDelivery, error) {
	if s == nil || s.db == nil {
		return core.WebhookDelivery{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	id = strings.TrimSpace(id)
	record := &deliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WebhookDelivery{}, core.NotFoundError(id)
		}
		return core.WebhookDelivery{}, err
	}
	return record.toDomain(), nil
}

func (s *DeliveryStore) GetByIdempotencyKey(ctx context.Context, key string) (core.WebhookDelivery, error) {
	if s == nil || s.db == nil {
		return core.WebhookDelivery{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	key = strings.TrimSpace(key)
	record := &deliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.idempotency_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WebhookDelivery{}, core.NotFoundError(key)
		}
		return core.WebhookDelivery{}, err
	}
	return record.toDomain(), nil
}

// Save writes delivery when the stored version still matches and releases any
// dispatch lease. The idempotency key and creation time are never rewritten.
func (s *DeliveryStore) Save(ctx context.Context, delivery core.WebhookDelivery) (core.WebhookDelivery, error) {
	if s == nil || s.db == nil {
		return core.WebhookDelivery{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	delivery.ID = strings.TrimSpace(delivery.ID)
	if delivery.ID == "" {
		return core.WebhookDelivery{}, fmt.Errorf("sqlstore: delivery id is required")
	}
	expected := delivery.Version
	if delivery.UpdatedAt.IsZero() {
		delivery.UpdatedAt = time.Now().UTC()
	}
	record := newDeliveryRecord(delivery)
	record.Version = expected + 1
	record.LeaseUntil = nil

	result, err := s.db.NewUpdate().
		Model(record).
		ExcludeColumn("id", "idempotency_key", "created_at").
		Where("id = ?", delivery.ID).
		Where("version = ?", expected).
		Exec(ctx)
	if err != nil {
		return core.WebhookDelivery{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.WebhookDelivery{}, err
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, delivery.ID); getErr != nil {
			return core.WebhookDelivery{}, getErr
		}
		return core.WebhookDelivery{}, core.VersionConflictError(delivery.ID, expected)
	}
	return s.Get(ctx, delivery.ID)
}

const deliveryReturningColumns = `
	id,
	idempotency_key,
	webhook_id,
	url,
	method,
	headers,
	payload,
	status,
	attempts,
	max_attempts,
	initial_delay_ms,
	max_delay_ms,
	backoff_multiplier,
	jitter_factor,
	timeout_ms,
	last_attempt_at,
	next_retry_at,
	response_status,
	response_body,
	last_error,
	delivered_at,
	version,
	lease_until,
	created_at,
	updated_at
`

// ClaimDue leases up to limit due, unleased deliveries in one statement so
// concurrent dispatchers never receive the same row.
func (s *DeliveryStore) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]core.WebhookDelivery, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	now = now.UTC()
	leaseUntil := now.Add(lease)
	var records []deliveryRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH due AS (
	SELECT id
	FROM hook_webhook_deliveries
	WHERE status IN (?, ?)
	  AND (next_retry_at IS NULL OR next_retry_at <= ?)
	  AND (lease_until IS NULL OR lease_until <= ?)
	ORDER BY COALESCE(next_retry_at, created_at) ASC, id ASC
	LIMIT ?
)
UPDATE hook_webhook_deliveries
SET lease_until = ?
WHERE id IN (SELECT id FROM due)
RETURNING
` + deliveryReturningColumns
		return tx.NewRaw(
			query,
			string(core.DeliveryStatusPending),
			string(core.DeliveryStatusRetrying),
			now,
			now,
			limit,
			leaseUntil,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	deliveries := make([]core.WebhookDelivery, 0, len(records))
	for index := range records {
		deliveries = append(deliveries, records[index].toDomain())
	}
	return core.SelectDue(deliveries, now), nil
}

// Claim leases delivery id when it is due and unleased. A row that exists but
// cannot be leased is returned with core.NotDueError.
func (s *DeliveryStore) Claim(ctx context.Context, id string, now time.Time, lease time.Duration) (core.WebhookDelivery, error) {
	if s == nil || s.db == nil {
		return core.WebhookDelivery{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	id = strings.TrimSpace(id)
	now = now.UTC()
	query := `
UPDATE hook_webhook_deliveries
SET lease_until = ?
WHERE id = ?
  AND status IN (?, ?)
  AND (next_retry_at IS NULL OR next_retry_at <= ?)
  AND (lease_until IS NULL OR lease_until <= ?)
RETURNING
` + deliveryReturningColumns
	var records []deliveryRecord
	if err := s.db.NewRaw(
		query,
		now.Add(lease),
		id,
		string(core.DeliveryStatusPending),
		string(core.DeliveryStatusRetrying),
		now,
		now,
	).Scan(ctx, &records); err != nil {
		return core.WebhookDelivery{}, err
	}
	if len(records) > 0 {
		return records[0].toDomain(), nil
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return core.WebhookDelivery{}, err
	}
	return current, core.NotDueError(current)
}

func (s *DeliveryStore) List(ctx context.Context, filter core.DeliveryFilter) ([]core.WebhookDelivery, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	var records []deliveryRecord
	query := s.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.created_at DESC").
		OrderExpr("?TableAlias.id DESC")
	if filter.Status != "" {
		query = query.Where("?TableAlias.status = ?", string(filter.Status))
	}
	if webhookID := strings.TrimSpace(filter.WebhookID); webhookID != "" {
		query = query.Where("?TableAlias.webhook_id = ?", webhookID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.WebhookDelivery, 0, len(records))
	for index := range records {
		out = append(out, records[index].toDomain())
	}
	return out, nil
}

// Count returns the number of persisted deliveries in status, or every
// delivery when status is empty.
func (s *DeliveryStore) Count(ctx context.Context, status core.DeliveryStatus) (int, error) {
	if s == nil || s.repo == nil {
		return 0, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	criteria := []repository.SelectCriteria{repository.SelectPaginate(1, 0)}
	if status != "" {
		criteria = append(criteria, repository.SelectBy("status", "=", string(status)))
	}
	_, total, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
