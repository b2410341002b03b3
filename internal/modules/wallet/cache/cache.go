package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"pharos.xyz/statschecker/pkg/dto"
	"pharos.xyz/statschecker/pkg/metrics"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	DefaultTTL             = 5 * time.Minute
	DefaultMaxSize         = 20000
	DefaultCleanupFraction = 4
)

// FreshnessCache keeps recently normalized records so repeat checks of the same
// wallet skip the upstream. Losing it is always safe.
type FreshnessCache interface {
	Get(ctx context.Context, address string) (*dto.UserStatRecord, bool)
	Set(ctx context.Context, address string, record *dto.UserStatRecord)
	Len(ctx context.Context) int
	Backend() string
}

type Options struct {
	TTL             time.Duration
	MaxSize         int
	CleanupFraction int
	Clock           clockwork.Clock
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.MaxSize <= 0 {
		o.MaxSize = DefaultMaxSize
	}
	if o.CleanupFraction <= 0 {
		o.CleanupFraction = DefaultCleanupFraction
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

type entry struct {
	record     *dto.UserStatRecord
	storedAt   time.Time
	lastAccess time.Time
}

type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	opts    Options
}

func NewMemoryCache(opts Options) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*entry),
		opts:    opts.withDefaults(),
	}
}

func (c *MemoryCache) Backend() string { return BackendMemory }

func (c *MemoryCache) Get(_ context.Context, address string) (*dto.UserStatRecord, bool) {
	key := strings.ToLower(address)
	now := c.opts.Clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		metrics.CacheLookups.WithLabelValues(BackendMemory, "miss").Inc()
		return nil, false
	}
	if now.Sub(e.storedAt) >= c.opts.TTL {
		delete(c.entries, key)
		metrics.CacheLookups.WithLabelValues(BackendMemory, "expired").Inc()
		return nil, false
	}

	e.lastAccess = now
	metrics.CacheLookups.WithLabelValues(BackendMemory, "hit").Inc()
	return e.record.Clone(), true
}

func (c *MemoryCache) Set(_ context.Context, address string, record *dto.UserStatRecord) {
	if record == nil {
		return
	}
	key := strings.ToLower(address)
	now := c.opts.Clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{
		record:     record.Clone(),
		storedAt:   now,
		lastAccess: now,
	}
	if len(c.entries) > c.opts.MaxSize {
		c.evictLocked()
	}
}

func (c *MemoryCache) Len(_ context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked drops the MaxSize/CleanupFraction least recently accessed entries
// in one pass.
func (c *MemoryCache) evictLocked() {
	n := c.opts.MaxSize / c.opts.CleanupFraction
	if n < 1 {
		n = 1
	}

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].lastAccess.Before(c.entries[keys[j]].lastAccess)
	})

	if n > len(keys) {
		n = len(keys)
	}
	for _, k := range keys[:n] {
		delete(c.entries, k)
	}
	metrics.CacheEvictions.Add(float64(n))
}
