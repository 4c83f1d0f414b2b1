package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// LRUCache is a size-bounded cache of serialized solve results backed by
// ristretto. Entries carry their own expiry on top of ristretto's admission
// policy.
type LRUCache struct {
	cache      *ristretto.Cache
	defaultTTL time.Duration
}

type cacheItem struct {
	data      []byte
	expiresAt time.Time
}

// NewLRU creates a cache holding at most maxSizeMB megabytes of payload.
// maxEntries sizes ristretto's admission counters.
func NewLRU(maxSizeMB int64, maxEntries int64, defaultTTL time.Duration) (*LRUCache, error) {
	// ristretto wants ~10x as many counters as live entries
	numCounters := maxEntries * 10
	if numCounters < 1000 {
		numCounters = 1000
	}
	if maxSizeMB < 1 {
		maxSizeMB = 1
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxSizeMB << 20,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &LRUCache{cache: c, defaultTTL: defaultTTL}, nil
}

// Get retrieves a value from the cache by key.
func (c *LRUCache) Get(key string) ([]byte, bool) {
	val, found := c.cache.Get(key)
	if !found {
		return nil, false
	}
	item, ok := val.(*cacheItem)
	if !ok {
		c.cache.Del(key)
		return nil, false
	}
	if time.Now().After(item.expiresAt) {
		c.cache.Del(key)
		return nil, false
	}
	return item.data, true
}

// Set stores a value with the given TTL; zero means the default TTL. The
// cost of an entry is its length in bytes.
func (c *LRUCache) Set(key string, value []byte, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	item := &cacheItem{data: value, expiresAt: time.Now().Add(ttl)}
	// a rejected Set is not an error: the admission policy may refuse it
	_ = c.cache.Set(key, item, int64(len(value)))
	c.cache.Wait()
}

// Delete removes a value from the cache.
func (c *LRUCache) Delete(key string) {
	c.cache.Del(key)
}

// Clear removes all values from the cache.
func (c *LRUCache) Clear() {
	c.cache.Clear()
}

// Stats returns cache statistics.
func (c *LRUCache) Stats() Stats {
	m := c.cache.Metrics
	return Stats{
		Hits:      m.Hits(),
		Misses:    m.Misses(),
		KeysAdded: m.KeysAdded(),
		Evictions: m.KeysEvicted(),
		Size:      int64(m.CostAdded() - m.CostEvicted()),
		Items:     int64(m.KeysAdded() - m.KeysEvicted()),
	}
}

// Close closes the cache and releases resources.
func (c *LRUCache) Close() {
	c.cache.Close()
}
