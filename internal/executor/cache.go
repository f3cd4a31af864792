package executor

import (
	"sync"
	"sync/atomic"
	"time"
)

// ResultCache maps idempotency keys to completed results.
// Uses sync.Map for lock-free reads on the hot path.
type ResultCache struct {
	store sync.Map // map[string]*resultCacheEntry
	size  atomic.Int64
	ttl   time.Duration
	now   func() time.Time
}

type resultCacheEntry struct {
	result    *ExecutionResult
	expiresAt time.Time // zero = never
}

// NewResultCache creates a cache. A zero ttl keeps entries for the process lifetime.
func NewResultCache(ttl time.Duration, now func() time.Time) *ResultCache {
	if now == nil {
		now = time.Now
	}
	return &ResultCache{ttl: ttl, now: now}
}

// cacheKey scopes a caller's key to one tool.
func cacheKey(toolName, key string) string {
	return toolName + "\x00" + key
}

// Get returns the cached result, or false if absent or expired.
func (c *ResultCache) Get(toolName, key string) (*ExecutionResult, bool) {
	val, ok := c.store.Load(cacheKey(toolName, key))
	if !ok {
		return nil, false
	}
	entry := val.(*resultCacheEntry)
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.result, true
}

// Set stores a result with a fresh TTL.
func (c *ResultCache) Set(toolName, key string, res *ExecutionResult) {
	entry := &resultCacheEntry{result: res}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	if _, loaded := c.store.Swap(cacheKey(toolName, key), entry); !loaded {
		c.size.Add(1)
	}
}

// Sweep deletes expired entries and returns how many were removed.
func (c *ResultCache) Sweep() int {
	if c.ttl <= 0 {
		return 0
	}
	now := c.now()
	removed := 0
	c.store.Range(func(k, v any) bool {
		entry := v.(*resultCacheEntry)
		if !now.Before(entry.expiresAt) && c.store.CompareAndDelete(k, v) {
			c.size.Add(-1)
			removed++
		}
		return true
	})
	return removed
}

// Len returns the number of entries, expired ones included until swept.
func (c *ResultCache) Len() int {
	return int(c.size.Load())
}
