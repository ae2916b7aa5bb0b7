package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"formloc/models"
)

// RequestCache is the innermost cache layer: a bounded in-process LRU of
// IP address to location. Reading a key promotes it to most-recently-used;
// inserting into a full cache evicts the least-recently-used entry. The
// promotion on read is required for correct eviction order, not a
// performance nicety.
type RequestCache struct {
	lru     *lru.Cache[string, models.Location]
	maxSize int
}

// NewRequestCache creates a request cache bounded at maxSize entries.
func NewRequestCache(maxSize int) (*RequestCache, error) {
	l, err := lru.New[string, models.Location](maxSize)
	if err != nil {
		return nil, err
	}
	return &RequestCache{lru: l, maxSize: maxSize}, nil
}

// Get returns the cached location for an IP and marks it recently used.
func (c *RequestCache) Get(ip string) (models.Location, bool) {
	return c.lru.Get(ip)
}

// Add inserts or refreshes an entry, evicting the LRU entry when full.
func (c *RequestCache) Add(ip string, loc models.Location) {
	c.lru.Add(ip, loc)
}

// Keys returns the cached IPs, least recently used first.
func (c *RequestCache) Keys() []string {
	return c.lru.Keys()
}

// Len returns the current number of entries.
func (c *RequestCache) Len() int {
	return c.lru.Len()
}

// MaxSize returns the configured capacity.
func (c *RequestCache) MaxSize() int {
	return c.maxSize
}

// Purge removes every entry.
func (c *RequestCache) Purge() {
	c.lru.Purge()
}
