package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onetwotrip/punk/internal/record"
)

// Cache wraps a Fetcher with a short-lived Redis cache of raw documents per
// environment. Cache trouble never fails a query: reads fall through to the
// underlying fetcher and write failures are logged.
type Cache struct {
	client *redis.Client
	next   Fetcher
	ttl    time.Duration
	prefix string
}

// NewCache connects to Redis and wraps next.
func NewCache(redisURL string, next Fetcher, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewCacheWithClient(client, next, ttl), nil
}

// NewCacheWithClient wraps next using an existing Redis client.
func NewCacheWithClient(client *redis.Client, next Fetcher, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		next:   next,
		ttl:    ttl,
		prefix: "deploy:",
	}
}

func (c *Cache) key(env string) string {
	return c.prefix + env
}

// FetchEnvironment serves cached documents when present, otherwise fetches
// from the underlying store and caches a non-empty result.
func (c *Cache) FetchEnvironment(ctx context.Context, env string) ([]record.RawDocument, error) {
	blob, err := c.client.Get(ctx, c.key(env)).Result()
	if err == nil {
		var docs []record.RawDocument
		if jerr := json.Unmarshal([]byte(blob), &docs); jerr == nil {
			return docs, nil
		}
		log.Printf("store: bad cache entry for %s, refetching", env)
	} else if err != redis.Nil {
		log.Printf("store: cache read for %s: %v", env, err)
	}

	docs, err := c.next.FetchEnvironment(ctx, env)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return docs, nil
	}

	encoded, jerr := json.Marshal(docs)
	if jerr != nil {
		log.Printf("store: encode cache entry for %s: %v", env, jerr)
		return docs, nil
	}
	if serr := c.client.Set(ctx, c.key(env), encoded, c.ttl).Err(); serr != nil {
		log.Printf("store: cache write for %s: %v", env, serr)
	}
	return docs, nil
}

// Healthy reports the underlying fetcher's health when it exposes one.
func (c *Cache) Healthy() bool {
	if hr, ok := c.next.(interface{ Healthy() bool }); ok {
		return hr.Healthy()
	}
	return true
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
