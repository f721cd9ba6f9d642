// Package cache provides a Redis-backed cache-aside layer for product listings.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/partsync/internal/core"
)

// Stats tracks cache statistics.
type Stats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Sets          uint64 `json:"sets"`
	Invalidations uint64 `json:"invalidations"`
	Errors        uint64 `json:"errors"`
}

// ListCache caches product pages under "<prefix><skip>:<limit>".
type ListCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	stats  Stats
}

// New creates a list cache. An empty prefix defaults to "products:list:".
func New(client *redis.Client, prefix string, ttl time.Duration) *ListCache {
	if prefix == "" {
		prefix = "products:list:"
	}
	return &ListCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *ListCache) key(skip, limit int) string {
	return c.prefix + strconv.Itoa(skip) + ":" + strconv.Itoa(limit)
}

// GetList returns a cached page. A miss is (nil, false, nil).
func (c *ListCache) GetList(ctx context.Context, skip, limit int) ([]core.Product, bool, error) {
	data, err := c.client.Get(ctx, c.key(skip, limit)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			atomic.AddUint64(&c.stats.Misses, 1)
			return nil, false, nil
		}
		atomic.AddUint64(&c.stats.Errors, 1)
		return nil, false, fmt.Errorf("cache get error: %w", err)
	}

	var products []core.Product
	if err := json.Unmarshal(data, &products); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return nil, false, fmt.Errorf("cache unmarshal error: %w", err)
	}

	atomic.AddUint64(&c.stats.Hits, 1)
	return products, true, nil
}

// SetList stores a page with the configured TTL.
func (c *ListCache) SetList(ctx context.Context, skip, limit int, products []core.Product) error {
	data, err := json.Marshal(products)
	if err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if err := c.client.Set(ctx, c.key(skip, limit), data, c.ttl).Err(); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("cache set error: %w", err)
	}
	atomic.AddUint64(&c.stats.Sets, 1)
	return nil
}

// Invalidate drops every cached page.
func (c *ListCache) Invalidate(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", 100).Result()
		if err != nil {
			atomic.AddUint64(&c.stats.Errors, 1)
			return fmt.Errorf("cache scan error: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				atomic.AddUint64(&c.stats.Errors, 1)
				return fmt.Errorf("cache delete error: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	atomic.AddUint64(&c.stats.Invalidations, 1)
	return nil
}

// Stats returns a snapshot of the counters.
func (c *ListCache) Stats() Stats {
	return Stats{
		Hits:          atomic.LoadUint64(&c.stats.Hits),
		Misses:        atomic.LoadUint64(&c.stats.Misses),
		Sets:          atomic.LoadUint64(&c.stats.Sets),
		Invalidations: atomic.LoadUint64(&c.stats.Invalidations),
		Errors:        atomic.LoadUint64(&c.stats.Errors),
	}
}
