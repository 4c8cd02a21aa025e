package commands

import (
	"sync"
	"time"
)

type CacheItem struct {
	ChartData  []byte
	Caption    string
	Expiration time.Time
}

// chartCache keeps rendered charts for a few minutes so repeated /c calls skip the upstream.
type chartCache struct {
	mu    sync.Mutex
	items map[string]*CacheItem
	ttl   time.Duration
}

func newChartCache(ttl time.Duration) *chartCache {
	return &chartCache{items: make(map[string]*CacheItem), ttl: ttl}
}

func (c *chartCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *chartCache) get(key string) (*CacheItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		return nil, false
	}
	if time.Now().After(item.Expiration) {
		delete(c.items, key)
		return nil, false
	}
	return item, true
}

func (c *chartCache) set(key string, chartData []byte, caption string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, item := range c.items {
		if now.After(item.Expiration) {
			delete(c.items, k)
		}
	}
	c.items[key] = &CacheItem{
		ChartData:  chartData,
		Caption:    caption,
		Expiration: now.Add(c.ttl),
	}
}
