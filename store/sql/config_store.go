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

type ConfigStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookConfigRecord]
}

func NewConfigStore(db *bun.DB) (*ConfigStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookConfigRecord](db, webhookConfigHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook config repository wiring: %w", err)
		}
	}
	return &ConfigStore{db: db, repo: repo}, nil
}

func (s *ConfigStore) Get(ctx context.Context, id string) (core.WebhookConfig, error) {
	if s == nil || s.db == nil {
		return core.WebhookConfig{}, fmt.Errorf("sqlstore: config store is not configured")
	}
	record, err := findWebhookConfig(ctx, s.db, strings.TrimSpace(id))
	if err != nil {
		return core.WebhookConfig{}, err
	}
	if record == nil {
		return core.WebhookConfig{}, core.WebhookNotFoundError(strings.TrimSpace(id))
	}
	return record.toDomain(), nil
}

func (s *ConfigStore) Upsert(ctx context.Context, cfg core.WebhookConfig) (core.WebhookConfig, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.WebhookConfig{}, fmt.Errorf("sqlstore: config store is not configured")
	}
	cfg.ID = strings.TrimSpace(cfg.ID)
	if cfg.ID == "" {
		return core.WebhookConfig{}, fmt.Errorf("sqlstore: webhook id is required")
	}

	now := time.Now().UTC()
	var out core.WebhookConfig
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := findWebhookConfig(ctx, tx, cfg.ID)
		if err != nil {
			return err
		}
		record := newWebhookConfigRecord(cfg, now)
		if existing == nil {
			inserted, createErr := s.repo.CreateTx(ctx, tx, record)
			if createErr != nil {
				return createErr
			}
			out = inserted.toDomain()
			return nil
		}

		record.CreatedAt = existing.CreatedAt
		if _, updateErr := tx.NewUpdate().
			Model(record).
			ExcludeColumn("created_at").
			Where("id = ?", record.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.WebhookConfig{}, err
	}
	return out, nil
}

// ListByEvent returns configs subscribed to event, compared case-insensitively.
func (s *ConfigStore) ListByEvent(ctx context.Context, event string) ([]core.WebhookConfig, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: config store is not configured")
	}
	event = strings.TrimSpace(strings.ToLower(event))
	if event == "" {
		return nil, fmt.Errorf("sqlstore: event is required")
	}
	var records []webhookConfigRecord
	if err := s.db.NewSelect().
		Model(&records).
		Where("LOWER(?TableAlias.event) = ?", event).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.WebhookConfig, 0, len(records))
	for index := range records {
		out = append(out, records[index].toDomain())
	}
	return out, nil
}

func (s *ConfigStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: config store is not configured")
	}
	id = strings.TrimSpace(id)
	result, err := s.db.NewDelete().
		Model((*webhookConfigRecord)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.WebhookNotFoundError(id)
	}
	return nil
}

func findWebhookConfig(ctx context.Context, db bun.IDB, id string) (*webhookConfigRecord, error) {
	record := &webhookConfigRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}
