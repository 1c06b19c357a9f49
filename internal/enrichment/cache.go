package enrichment

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"certpipe/internal/constants"
)

// Cache is the read-through store for group names and member nicknames.
// Misses and Redis failures are both reported as a miss; the caller
// falls through to the gateway.
type Cache struct {
	client *redis.Client
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

func NewCache(client *redis.Client, ttlSeconds int) *Cache {
	if ttlSeconds <= 0 {
		ttlSeconds = constants.DefaultEnrichCacheTTLSeconds
	}
	return &Cache{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}
}

func (c *Cache) GetGroupName(ctx context.Context, groupID string) (string, bool) {
	return c.get(ctx, constants.CacheKeyPrefixGroupName+groupID)
}

func (c *Cache) SetGroupName(ctx context.Context, groupID, name string) {
	c.set(ctx, constants.CacheKeyPrefixGroupName+groupID, name)
}

func (c *Cache) GetMemberNick(ctx context.Context, groupID, memberID string) (string, bool) {
	return c.get(ctx, constants.CacheKeyPrefixMemberNick+groupID+":"+memberID)
}

func (c *Cache) SetMemberNick(ctx context.Context, groupID, memberID, nick string) {
	c.set(ctx, constants.CacheKeyPrefixMemberNick+groupID+":"+memberID, nick)
}

func (c *Cache) get(ctx context.Context, key string) (string, bool) {
	if c.client == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		c.misses.Add(1)
		return "", false
	}
	c.hits.Add(1)
	return val, true
}

func (c *Cache) set(ctx context.Context, key, value string) {
	if c.client == nil || value == "" {
		return
	}
	// Write failures are not worth failing enrichment over.
	c.client.Set(ctx, key, value, c.ttl)
}

// HitRate reports the lifetime cache hit rate for the metrics gauge.
func (c *Cache) HitRate() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
