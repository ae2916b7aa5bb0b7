package cache

import (
	"context"
	"log"
	"time"

	"formloc/db"
	"formloc/internal/util"
	"formloc/models"
)

// MultiLayerCache fronts IP location lookups with three layers: the
// in-process LRU, the shared object cache, and the persistent store. Layers
// are checked in that order and each is refilled from the layer below on a
// hit. Each layer keeps its own copy of the record; entries are replaced,
// never shared or mutated.
type MultiLayerCache struct {
	request *RequestCache
	object  ObjectCache // nil when the shared cache layer is disabled
	store   db.LocationRepository
}

// ClearResult reports how many entries the administrative clear removed
// from each layer.
type ClearResult struct {
	PersistentCleared int `json:"persistent_cleared"`
	ObjectCleared     int `json:"object_cache_cleared"`
	MemoryCleared     int `json:"memory_cleared"`
}

// Stats describes the current cache state for observability.
type Stats struct {
	MemorySize      int `json:"memory_cache_size"`
	MemoryMaxSize   int `json:"memory_cache_max"`
	PersistentCount int `json:"persistent_cache_count"`
}

// NewMultiLayerCache assembles the cache from its layers. object may be nil.
func NewMultiLayerCache(request *RequestCache, object ObjectCache, store db.LocationRepository) *MultiLayerCache {
	return &MultiLayerCache{
		request: request,
		object:  object,
		store:   store,
	}
}

// Get looks an IP up through the layers, promoting hits into the faster
// layers. The boolean reports whether any layer held a live entry.
func (c *MultiLayerCache) Get(ctx context.Context, ip string) (models.Location, bool) {
	if loc, ok := c.request.Get(ip); ok {
		return loc, true
	}

	if c.object != nil {
		loc, ok, err := c.object.Get(ctx, ip)
		if err != nil {
			log.Printf("Object cache lookup failed for %s: %v", ip, err)
		} else if ok {
			c.request.Add(ip, loc)
			return loc, true
		}
	}

	loc, expiresAt, err := c.store.FindByIPWithExpiry(ctx, ip)
	if err != nil {
		if err != db.ErrNotFound {
			log.Printf("Persistent cache lookup failed for %s: %v", ip, err)
		}
		return models.Location{}, false
	}

	// Promote with the remaining lifetime so the object cache never outlives
	// the persistent entry.
	if c.object != nil {
		if remaining := time.Until(expiresAt); remaining > 0 {
			if err := c.object.Set(ctx, ip, *loc, remaining); err != nil {
				log.Printf("Object cache promotion failed for %s: %v", ip, err)
			}
		}
	}
	c.request.Add(ip, *loc)

	return *loc, true
}

// Put writes a freshly classified record through every layer with the TTL
// the resolver chose. Failures in the shared layers are logged, not
// returned: a cache write must never fail a resolution.
func (c *MultiLayerCache) Put(ctx context.Context, ip string, loc models.Location, ttl time.Duration) {
	c.request.Add(ip, loc)

	if c.object != nil {
		if err := c.object.Set(ctx, ip, loc, ttl); err != nil {
			log.Printf("Object cache write failed for %s: %v", ip, err)
		}
	}

	err := util.RetryOnLock(func() error {
		return c.store.Upsert(ctx, &loc, ttl)
	})
	if err != nil {
		log.Printf("Persistent cache write failed for %s: %v", ip, err)
	}
}

// Clear empties the in-process layer only. The shared and persistent layers
// are long-lived and cleared by ClearAll.
func (c *MultiLayerCache) Clear() {
	c.request.Purge()
}

// ClearAll is the administrative clear: it deletes every persistent entry,
// the object-cache entries for IPs currently held in the in-process layer,
// and finally the in-process layer itself.
func (c *MultiLayerCache) ClearAll(ctx context.Context) (ClearResult, error) {
	var result ClearResult

	persistent, err := c.store.DeleteAll(ctx)
	if err != nil {
		return result, err
	}
	result.PersistentCleared = persistent

	if c.object != nil {
		deleted, err := c.object.Delete(ctx, c.request.Keys()...)
		if err != nil {
			log.Printf("Object cache clear failed: %v", err)
		} else {
			result.ObjectCleared = deleted
		}
	}

	result.MemoryCleared = c.request.Len()
	c.request.Purge()

	return result, nil
}

// Stats reports the current cache sizes.
func (c *MultiLayerCache) Stats(ctx context.Context) (Stats, error) {
	count, err := c.store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		MemorySize:      c.request.Len(),
		MemoryMaxSize:   c.request.MaxSize(),
		PersistentCount: count,
	}, nil
}
