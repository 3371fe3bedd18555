// Package layoutcache provides a Redis read-through cache in front of region layout lookups.
package layoutcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"hotspot/api/internal/logger"
	"hotspot/api/internal/store"
)

const DefaultTTL = 5 * time.Minute

// fillTimeout bounds a shared source load, which outlives any single caller's context.
const fillTimeout = 10 * time.Second

// Source is the authoritative layout reader the cache fills from.
type Source interface {
	GetRegionLayout(ctx context.Context, id int64) (*store.RegionLayout, error)
	LatestRegionLayout(ctx context.Context, keys []string) (*store.RegionLayout, error)
}

// entry is what is stored under a key. A nil Layout records that the source had none.
type entry struct {
	Layout *store.RegionLayout `json:"layout"`
}

// RedisCache caches layout lookups. Redis failures never fail a lookup; the cache falls back to
// the source and logs a warning.
type RedisCache struct {
	client *redis.Client
	source Source
	ttl    time.Duration
	prefix string
	log    *logger.Logger
	group  singleflight.Group
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(redisURL string, source Source, ttl time.Duration, log *logger.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisCacheWithClient(client, source, ttl, log), nil
}

// NewRedisCacheWithClient creates a cache from an existing Redis client.
func NewRedisCacheWithClient(client *redis.Client, source Source, ttl time.Duration, log *logger.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisCache{
		client: client,
		source: source,
		ttl:    ttl,
		prefix: "layout:",
		log:    log,
	}
}

func (c *RedisCache) roomKey(keys []string) string {
	lowered := make([]string, len(keys))
	for i, k := range keys {
		lowered[i] = strings.ToLower(k)
	}
	return c.prefix + "room:" + strings.Join(lowered, "|")
}

func (c *RedisCache) idKey(id int64) string {
	return c.prefix + "id:" + strconv.FormatInt(id, 10)
}

// GetRegionLayout returns the layout with the given id, nil when it does not exist.
func (c *RedisCache) GetRegionLayout(ctx context.Context, id int64) (*store.RegionLayout, error) {
	return c.load(ctx, c.idKey(id), func(ctx context.Context) (*store.RegionLayout, error) {
		return c.source.GetRegionLayout(ctx, id)
	})
}

// LatestRegionLayout returns the newest active layout for any of keys, nil when none exists.
func (c *RedisCache) LatestRegionLayout(ctx context.Context, keys []string) (*store.RegionLayout, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	return c.load(ctx, c.roomKey(keys), func(ctx context.Context) (*store.RegionLayout, error) {
		return c.source.LatestRegionLayout(ctx, keys)
	})
}

// Invalidate drops the cached lookups for a room key set and, when id is positive, a layout id.
func (c *RedisCache) Invalidate(ctx context.Context, keys []string, id int64) error {
	cacheKeys := make([]string, 0, 2)
	if len(keys) > 0 {
		cacheKeys = append(cacheKeys, c.roomKey(keys))
	}
	if id > 0 {
		cacheKeys = append(cacheKeys, c.idKey(id))
	}
	if len(cacheKeys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, cacheKeys...).Err(); err != nil {
		return fmt.Errorf("invalidate layout cache: %w", err)
	}
	return nil
}

// load serves key from Redis or fills it from the source. Concurrent misses share one fill, which
// runs detached from the caller that started it so a cancelled request cannot fail the others.
func (c *RedisCache) load(ctx context.Context, key string, fill func(context.Context) (*store.RegionLayout, error)) (*store.RegionLayout, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached entry
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached.Layout, nil
		}
		c.log.Warn("discarding unreadable layout cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("layout cache read failed", "key", key, "error", err)
	}

	result := c.group.DoChan(key, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
		defer cancel()
		layout, err := fill(fillCtx)
		if err != nil {
			return nil, err
		}
		c.store(fillCtx, key, layout)
		return layout, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*store.RegionLayout), nil
	}
}

func (c *RedisCache) store(ctx context.Context, key string, layout *store.RegionLayout) {
	payload, err := json.Marshal(entry{Layout: layout})
	if err != nil {
		c.log.Warn("encode layout cache entry failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.log.Warn("layout cache write failed", "key", key, "error", err)
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
