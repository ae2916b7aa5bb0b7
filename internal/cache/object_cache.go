package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"formloc/models"
)

// objectKeyPrefix namespaces location entries in the shared object cache.
const objectKeyPrefix = "formloc:ipstack:"

// ObjectKey returns the shared-cache key for an IP address.
func ObjectKey(ip string) string {
	return objectKeyPrefix + ip
}

// ObjectCache is the shared middle cache layer, visible to every process
// that serves submissions. Values are stored with the TTL the resolver
// chose at classification time.
type ObjectCache interface {
	Get(ctx context.Context, ip string) (models.Location, bool, error)
	Set(ctx context.Context, ip string, loc models.Location, ttl time.Duration) error
	// Delete removes entries for the given IPs and reports how many existed.
	Delete(ctx context.Context, ips ...string) (int, error)
	Close() error
}

// RedisCache implements ObjectCache on Redis with JSON-encoded values.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get fetches a cached location. A missing key is not an error.
func (c *RedisCache) Get(ctx context.Context, ip string) (models.Location, bool, error) {
	var loc models.Location

	data, err := c.client.Get(ctx, ObjectKey(ip)).Bytes()
	if err == redis.Nil {
		return loc, false, nil
	}
	if err != nil {
		return loc, false, fmt.Errorf("object cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, &loc); err != nil {
		return loc, false, fmt.Errorf("object cache entry corrupt: %w", err)
	}
	return loc, true, nil
}

// Set stores a location with the given TTL.
func (c *RedisCache) Set(ctx context.Context, ip string, loc models.Location, ttl time.Duration) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("failed to encode location: %w", err)
	}

	if err := c.client.Set(ctx, ObjectKey(ip), data, ttl).Err(); err != nil {
		return fmt.Errorf("object cache set failed: %w", err)
	}
	return nil
}

// Delete removes entries for the given IPs.
func (c *RedisCache) Delete(ctx context.Context, ips ...string) (int, error) {
	if len(ips) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ips))
	for i, ip := range ips {
		keys[i] = ObjectKey(ip)
	}

	deleted, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("object cache delete failed: %w", err)
	}
	return int(deleted), nil
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
