package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// AnalyticsCache stores computed analytics payloads as JSON.
// Get reports found=false on a miss; dest is only written on a hit.
type AnalyticsCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type NoopAnalyticsCache struct{}

func (NoopAnalyticsCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopAnalyticsCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

type memoryItem struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryAnalyticsCache is used when no redis address is configured.
type MemoryAnalyticsCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryAnalyticsCache() *MemoryAnalyticsCache {
	return &MemoryAnalyticsCache{items: map[string]memoryItem{}, now: time.Now}
}

func (c *MemoryAnalyticsCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	item, ok := c.items[key]
	if ok && !c.now().Before(item.expiresAt) {
		delete(c.items, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(item.payload, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *MemoryAnalyticsCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = memoryItem{payload: payload, expiresAt: c.now().Add(ttl)}
	return nil
}
