package embedding

import (
	"sync"
	"time"
)

// cacheEntry is one process-local cache row, fronting the persistent store.
type cacheEntry struct {
	vector    []float32
	expiresAt time.Time
}

// localCache is a sync.Map keyed by content hash, with a background
// goroutine sweeping expired entries instead of a size-bounded LRU.
type localCache struct {
	entries sync.Map // content hash -> cacheEntry
	ttl     time.Duration

	// hits/misses back a test-observable cache hit/miss counter.
	hits   int64
	misses int64
	mu     sync.Mutex
}

func newLocalCache(ttl time.Duration) *localCache {
	return &localCache{ttl: ttl}
}

func (c *localCache) get(hash string) ([]float32, bool) {
	v, ok := c.entries.Load(hash)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !ok {
		c.misses++
		return nil, false
	}
	entry := v.(cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.entries.Delete(hash)
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.vector, true
}

func (c *localCache) set(hash string, vector []float32) {
	c.entries.Store(hash, cacheEntry{vector: vector, expiresAt: time.Now().Add(c.ttl)})
}

func (c *localCache) sweep() {
	now := time.Now()
	c.entries.Range(func(key, value any) bool {
		if entry := value.(cacheEntry); now.After(entry.expiresAt) {
			c.entries.Delete(key)
		}
		return true
	})
}

// Stats reports cumulative hit/miss counts.
func (c *localCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
