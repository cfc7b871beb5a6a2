package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-hookdelivery/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const webhookConfigCacheKeyPrefix = "go-hookdelivery::webhook_config::v1"

// CachedConfigStore serves config reads from a cache and invalidates on write.
// ListByEvent is not cached since an upsert may move a config between events.
type CachedConfigStore struct {
	base  core.ConfigStore
	cache repositorycache.CacheService
}

func NewCachedConfigStore(base core.ConfigStore, cacheService repositorycache.CacheService) (*CachedConfigStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base config store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: config cache service is required")
	}
	return &CachedConfigStore{base: base, cache: cacheService}, nil
}

// WebhookConfigCacheKey returns go-hookdelivery::webhook_config::v1::<id> with
// the id URL-path escaped.
func WebhookConfigCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: webhook id is required")
	}
	return webhookConfigCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (s *CachedConfigStore) Get(ctx context.Context, id string) (core.WebhookConfig, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.WebhookConfig{}, fmt.Errorf("sqlstore: cached config store is not configured")
	}
	cacheKey, err := WebhookConfigCacheKey(id)
	if err != nil {
		return core.WebhookConfig{}, err
	}
	cfg, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.WebhookConfig, error) {
		return s.base.Get(ctx, strings.TrimSpace(id))
	})
	if err != nil {
		return core.WebhookConfig{}, err
	}
	return cloneWebhookConfig(cfg), nil
}

func (s *CachedConfigStore) Upsert(ctx context.Context, cfg core.WebhookConfig) (core.WebhookConfig, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.WebhookConfig{}, fmt.Errorf("sqlstore: cached config store is not configured")
	}
	stored, err := s.base.Upsert(ctx, cfg)
	if err != nil {
		return core.WebhookConfig{}, err
	}
	if err := s.invalidate(ctx, stored.ID); err != nil {
		return core.WebhookConfig{}, err
	}
	return stored, nil
}

func (s *CachedConfigStore) ListByEvent(ctx context.Context, event string) ([]core.WebhookConfig, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached config store is not configured")
	}
	return s.base.ListByEvent(ctx, event)
}

func (s *CachedConfigStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached config store is not configured")
	}
	if err := s.base.Delete(ctx, id); err != nil {
		return err
	}
	return s.invalidate(ctx, id)
}

func (s *CachedConfigStore) invalidate(ctx context.Context, id string) error {
	cacheKey, err := WebhookConfigCacheKey(id)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneWebhookConfig(cfg core.WebhookConfig) core.WebhookConfig {
	cloned := cfg
	cloned.Headers = copyStringMap(cfg.Headers)
	return cloned
}

var _ core.ConfigStore = (*CachedConfigStore)(nil)
