package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"pharos.xyz/statschecker/pkg/apperror"
	"pharos.xyz/statschecker/pkg/dto"
	"pharos.xyz/statschecker/pkg/logger"
	"pharos.xyz/statschecker/pkg/metrics"
)

const keyPrefix = "pharos:cache:"

type envelope struct {
	StoredAt time.Time           `json:"stored_at"`
	Record   *dto.UserStatRecord `json:"record"`
}

// RedisCache shares the freshness window across instances and restarts. Redis
// expires the keys; the stored timestamp is still checked so the window is
// exact.
type RedisCache struct {
	client *redis.Client
	opts   Options
}

func NewRedisCache(client *redis.Client, opts Options) *RedisCache {
	return &RedisCache{client: client, opts: opts.withDefaults()}
}

func (c *RedisCache) Backend() string { return BackendRedis }

func (c *RedisCache) Get(ctx context.Context, address string) (*dto.UserStatRecord, bool) {
	if c.client == nil {
		metrics.CacheLookups.WithLabelValues(BackendRedis, "miss").Inc()
		return nil, false
	}
	key := keyPrefix + strings.ToLower(address)

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheLookups.WithLabelValues(BackendRedis, "miss").Inc()
		return nil, false
	}
	if err != nil {
		logger.Warnf("freshness cache read %s: %v", address, err)
		metrics.CacheLookups.WithLabelValues(BackendRedis, "miss").Inc()
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Record == nil {
		logger.Warnf("%v: freshness cache entry %s dropped", apperror.ErrCacheCorruption, address)
		metrics.CacheLookups.WithLabelValues(BackendRedis, "corrupt").Inc()
		c.client.Del(ctx, key)
		return nil, false
	}
	if c.opts.Clock.Since(env.StoredAt) >= c.opts.TTL {
		metrics.CacheLookups.WithLabelValues(BackendRedis, "expired").Inc()
		c.client.Del(ctx, key)
		return nil, false
	}

	metrics.CacheLookups.WithLabelValues(BackendRedis, "hit").Inc()
	return env.Record, true
}

func (c *RedisCache) Set(ctx context.Context, address string, record *dto.UserStatRecord) {
	if c.client == nil || record == nil {
		return
	}
	payload, err := json.Marshal(envelope{StoredAt: c.opts.Clock.Now(), Record: record})
	if err != nil {
		logger.Warnf("freshness cache encode %s: %v", address, err)
		return
	}
	if err := c.client.SetEx(ctx, keyPrefix+strings.ToLower(address), payload, c.opts.TTL).Err(); err != nil {
		logger.Warnf("freshness cache write %s: %v", address, err)
	}
}

// Len counts live keys with SCAN; it is only used by the health endpoint.
func (c *RedisCache) Len(ctx context.Context) int {
	if c.client == nil {
		return 0
	}
	n := 0
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		logger.Warnf("freshness cache size: %v", err)
	}
	return n
}
