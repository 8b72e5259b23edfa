// Package cache memoizes retrieval results in Redis. Entries are namespaced
// by a generation counter; invalidation bumps the counter so every process
// sharing the Redis instance stops seeing old entries at once.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spacebio/knowledge-engine/backend/pkg/common"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"
	"github.com/spacebio/knowledge-engine/backend/pkg/store"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 10 * time.Minute

// RedisResultCache implements graph.ResultCache.
//
// A RedisResultCache should be created using NewRedisResultCache.
type RedisResultCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type NewRedisResultCacheParams struct {
	URL    string
	Prefix string
	TTL    time.Duration
}

// NewRedisResultCache connects to the Redis server at URL and verifies it
// answers.
func NewRedisResultCache(ctx context.Context, params NewRedisResultCacheParams) (*RedisResultCache, error) {
	opts, err := redis.ParseURL(params.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisResultCacheWithClient(client, params.Prefix, params.TTL), nil
}

func NewRedisResultCacheWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisResultCache {
	if prefix == "" {
		prefix = "kg:retrieval"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisResultCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisResultCache) generationKey() string {
	return c.prefix + ":gen"
}

func (c *RedisResultCache) generation(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, c.generationKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// patternKey hashes the canonical JSON form of the pattern.
func (c *RedisResultCache) patternKey(gen int64, pattern store.Pattern) string {
	b, _ := json.Marshal(pattern)
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%s:%d:%s", c.prefix, gen, hex.EncodeToString(sum[:16]))
}

// Get returns cached publications. Redis failures and entries that do not
// decode count as a miss.
func (c *RedisResultCache) Get(ctx context.Context, pattern store.Pattern) ([]common.Publication, bool) {
	gen, err := c.generation(ctx)
	if err != nil {
		logger.Debug("[Cache] Generation lookup failed", "err", err)
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.patternKey(gen, pattern)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Debug("[Cache] Lookup failed", "err", err)
		}
		return nil, false
	}
	var pubs []common.Publication
	if err := json.Unmarshal(raw, &pubs); err != nil {
		return nil, false
	}
	return pubs, true
}

// Set stores pubs under the current generation. Failures are logged and
// otherwise ignored.
func (c *RedisResultCache) Set(ctx context.Context, pattern store.Pattern, pubs []common.Publication) {
	gen, err := c.generation(ctx)
	if err != nil {
		logger.Debug("[Cache] Generation lookup failed", "err", err)
		return
	}
	if pubs == nil {
		pubs = []common.Publication{}
	}
	b, err := json.Marshal(pubs)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.patternKey(gen, pattern), b, c.ttl).Err(); err != nil {
		logger.Debug("[Cache] Store failed", "err", err)
	}
}

// Invalidate moves to a new generation. Old entries expire with their TTL.
func (c *RedisResultCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("invalidate retrieval cache: %w", err)
	}
	return nil
}

func (c *RedisResultCache) Close() error {
	return c.client.Close()
}
