package reports

import (
	"context"
	"sync"
	"time"

	"carbon-scribe/marketplace/marketplace-backend/internal/notifications"
)

// SummaryCache holds the last computed summary for a fixed TTL.
type SummaryCache struct {
	mu         sync.RWMutex
	ttl        time.Duration
	value      *MarketSummary
	expiration time.Time
	hits       int64
	misses     int64
}

func NewSummaryCache(ttl time.Duration) *SummaryCache {
	return &SummaryCache{ttl: ttl}
}

func (c *SummaryCache) Get() (*MarketSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.value == nil || time.Now().After(c.expiration) {
		c.misses++
		return nil, false
	}
	c.hits++
	return c.value, true
}

func (c *SummaryCache) Set(value *MarketSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = value
	c.expiration = time.Now().Add(c.ttl)
}

func (c *SummaryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = nil
}

// Stats returns hit and miss counts since creation.
func (c *SummaryCache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Name and Deliver make the cache a notification sink: any marketplace
// event drops the cached summary.
func (c *SummaryCache) Name() string { return "reports-cache" }

func (c *SummaryCache) Deliver(ctx context.Context, evt notifications.Event) error {
	c.Invalidate()
	return nil
}
