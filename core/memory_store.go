package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryDeliveryStore is a process-local DeliveryStore. All operations are
// serialized by one mutex, which gives CreateOrGet and ClaimDue the same
// atomicity the SQL store gets from its unique index and transaction.
type MemoryDeliveryStore struct {
	mu      sync.Mutex
	records map[string]WebhookDelivery
	keys    map[string]string
	leases  map[string]time.Time
}

func NewMemoryDeliveryStore() *MemoryDeliveryStore {
	return &MemoryDeliveryStore{
		records: map[string]WebhookDelivery{},
		keys:    map[string]string{},
		leases:  map[string]time.Time{},
	}
}

func (s *MemoryDeliveryStore) CreateOrGet(_ context.Context, record WebhookDelivery) (WebhookDelivery, bool, error) {
	if s == nil {
		return WebhookDelivery{}, false, fmt.Errorf("core: delivery store is not configured")
	}
	record.ID = strings.TrimSpace(record.ID)
	record.IdempotencyKey = strings.TrimSpace(record.IdempotencyKey)
	if record.ID == "" {
		return WebhookDelivery{}, false, fmt.Errorf("core: delivery id is required")
	}
	if record.IdempotencyKey == "" {
		record.IdempotencyKey = record.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.keys[record.IdempotencyKey]; ok {
		return s.records[existingID].Clone(), true, nil
	}
	if _, ok := s.records[record.ID]; ok {
		return WebhookDelivery{}, false, fmt.Errorf("core: delivery %q already exists", record.ID)
	}
	stored := record.Clone()
	stored.Version = 1
	s.records[stored.ID] = stored
	s.keys[stored.IdempotencyKey] = stored.ID
	return stored.Clone(), false, nil
}

func (s *MemoryDeliveryStore) Get(_ context.Context, id string) (WebhookDelivery, error) {
	if s == nil {
		return WebhookDelivery{}, fmt.Errorf("core: delivery store is not configured")
	}
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return WebhookDelivery{}, NotFoundError(id)
	}
	return record.Clone(), nil
}

func (s *MemoryDeliveryStore) GetByIdempotencyKey(_ context.Context, key string) (WebhookDelivery, error) {
	if s == nil {
		return WebhookDelivery{}, fmt.Errorf("core: delivery store is not configured")
	}
	key = strings.TrimSpace(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.keys[key]
	if !ok {
		return WebhookDelivery{}, notFoundError("core: delivery with idempotency key "+key+" not found", "")
	}
	return s.records[id].Clone(), nil
}

func (s *MemoryDeliveryStore) Save(_ context.Context, record WebhookDelivery) (WebhookDelivery, error) {
	if s == nil {
		return WebhookDelivery{}, fmt.Errorf("core: delivery store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[record.ID]
	if !ok {
		return WebhookDelivery{}, NotFoundError(record.ID)
	}
	if current.Version != record.Version {
		return WebhookDelivery{}, VersionConflictError(record.ID, record.Version)
	}
	stored := record.Clone()
	stored.IdempotencyKey = current.IdempotencyKey
	stored.CreatedAt = current.CreatedAt
	stored.Version = current.Version + 1
	s.records[stored.ID] = stored
	delete(s.leases, stored.ID)
	return stored.Clone(), nil
}

func (s *MemoryDeliveryStore) ClaimDue(_ context.Context, now time.Time, limit int, lease time.Duration) ([]WebhookDelivery, error) {
	if s == nil {
		return nil, fmt.Errorf("core: delivery store is not configured")
	}
	if lease <= 0 {
		lease = defaultDispatchLease
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]WebhookDelivery, 0, len(s.records))
	for id, record := range s.records {
		if until, leased := s.leases[id]; leased && now.Before(until) {
			continue
		}
		candidates = append(candidates, record)
	}
	due := SelectDue(candidates, now)
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for _, record := range due {
		s.leases[record.ID] = now.Add(lease)
	}
	return due, nil
}

func (s *MemoryDeliveryStore) Claim(_ context.Context, id string, now time.Time, lease time.Duration) (WebhookDelivery, error) {
	if s == nil {
		return WebhookDelivery{}, fmt.Errorf("core: delivery store is not configured")
	}
	if lease <= 0 {
		lease = defaultDispatchLease
	}
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return WebhookDelivery{}, NotFoundError(id)
	}
	if until, leased := s.leases[id]; (leased && now.Before(until)) || !record.IsDue(now) {
		return record.Clone(), NotDueError(record)
	}
	s.leases[id] = now.Add(lease)
	return record.Clone(), nil
}

func (s *MemoryDeliveryStore) List(_ context.Context, filter DeliveryFilter) ([]WebhookDelivery, error) {
	if s == nil {
		return nil, fmt.Errorf("core: delivery store is not configured")
	}
	s.mu.Lock()
	records := make([]WebhookDelivery, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	s.mu.Unlock()
	return Filter(records, filter), nil
}

// MemoryConfigStore keeps webhook configs in process memory.
type MemoryConfigStore struct {
	mu      sync.RWMutex
	configs map[string]WebhookConfig
}

func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{configs: map[string]WebhookConfig{}}
}

func (s *MemoryConfigStore) Get(_ context.Context, id string) (WebhookConfig, error) {
	if s == nil {
		return WebhookConfig{}, fmt.Errorf("core: config store is not configured")
	}
	id = strings.TrimSpace(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[id]
	if !ok {
		return WebhookConfig{}, WebhookNotFoundError(id)
	}
	return cloneWebhookConfig(cfg), nil
}

func (s *MemoryConfigStore) Upsert(_ context.Context, cfg WebhookConfig) (WebhookConfig, error) {
	if s == nil {
		return WebhookConfig{}, fmt.Errorf("core: config store is not configured")
	}
	cfg.ID = strings.TrimSpace(cfg.ID)
	if cfg.ID == "" {
		return WebhookConfig{}, fmt.Errorf("core: webhook id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.ID] = cloneWebhookConfig(cfg)
	return cloneWebhookConfig(cfg), nil
}

func (s *MemoryConfigStore) ListByEvent(_ context.Context, event string) ([]WebhookConfig, error) {
	if s == nil {
		return nil, fmt.Errorf("core: config store is not configured")
	}
	event = strings.TrimSpace(event)
	s.mu.RLock()
	out := make([]WebhookConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		if event == "" || strings.EqualFold(cfg.Event, event) {
			out = append(out, cloneWebhookConfig(cfg))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryConfigStore) Delete(_ context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("core: config store is not configured")
	}
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[id]; !ok {
		return WebhookNotFoundError(id)
	}
	delete(s.configs, id)
	return nil
}

func cloneWebhookConfig(cfg WebhookConfig) WebhookConfig {
	out := cfg
	out.Headers = copyStringMap(cfg.Headers)
	return out
}

var _ DeliveryStore = (*MemoryDeliveryStore)(nil)
var _ ConfigStore = (*MemoryConfigStore)(nil)
