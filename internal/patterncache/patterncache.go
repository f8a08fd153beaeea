// Package patterncache implements the Pattern Cache (C2): a TTL + LRU
// wrapper in front of the Pattern Store's read methods, grounded on
// pkg/prefetch's Cache but generalized to a keyed (method, hour bucket,
// argument signature) cache with per-method metrics, per spec §4.2.
package patterncache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// entry is one cached value plus the bookkeeping needed for TTL expiry and
// LRU-by-accessed-time eviction.
type entry struct {
	method     string
	value      any
	hourBucket int64
	expiresAt  time.Time
	accessedAt time.Time
}

// Cache serves expensive Pattern Store reads from memory with TTL and LRU
// eviction, keyed on (method_name, hour_bucket, arg_signature) per spec
// §4.2. Its hour bucket component makes entries expire at hourly
// rollovers independently of the TTL sweep, so a cached pattern list never
// silently outlives a config reload window.
type Cache struct {
	mu      sync.Mutex
	lru     *lru.Cache[string, *entry]
	ttl     time.Duration
	maxSize int
	metrics *Metrics
	stats   stats
}

type stats struct {
	hits         uint64
	misses       uint64
	expirations  uint64
	evictions    uint64
	totalRequest uint64
	perMethod    map[string]*methodStats
}

type methodStats struct {
	hits   uint64
	misses uint64
}

// New constructs a Cache with the given TTL and maximum entry count.
func New(ttl time.Duration, maxSize int) (*Cache, error) {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache{
		ttl:     ttl,
		maxSize: maxSize,
		metrics: newMetrics(),
		stats:   stats{perMethod: make(map[string]*methodStats)},
	}
	inner, err := lru.NewWithEvict[string, *entry](maxSize, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("patterncache: construct LRU: %w", err)
	}
	c.lru = inner
	return c, nil
}

func (c *Cache) onEvict(_ string, _ *entry) {
	c.stats.evictions++
	c.metrics.EvictionsTotal.Inc()
}

// Key builds the composite cache key for one method call, hashing the
// argument signature so arbitrarily large argument sets still produce a
// bounded key. The hour bucket is passed in by the caller (normally
// time.Now().Truncate(time.Hour).Unix()) so tests can control it.
func Key(method string, hourBucket int64, args ...any) string {
	h := sha256.New()
	for _, a := range args {
		fmt.Fprintf(h, "%v|", a)
	}
	sig := hex.EncodeToString(h.Sum(nil))[:16]
	return fmt.Sprintf("%s:%d:%s", method, hourBucket, sig)
}

func currentHourBucket() int64 {
	return time.Now().Truncate(time.Hour).Unix()
}

// Get returns the cached value for key, or (nil, false) on a miss or
// expiry. An expired entry is removed lazily rather than waited out.
func (c *Cache) Get(method, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.totalRequest++
	ms := c.methodStatsLocked(method)

	e, ok := c.lru.Get(key)
	if !ok {
		c.stats.misses++
		ms.misses++
		c.metrics.MissesTotal.Inc()
		return nil, false
	}
	if time.Now().After(e.expiresAt) || e.hourBucket != currentHourBucket() {
		c.lru.Remove(key)
		c.stats.expirations++
		c.stats.misses++
		ms.misses++
		c.metrics.ExpirationsTotal.Inc()
		c.metrics.MissesTotal.Inc()
		return nil, false
	}

	e.accessedAt = time.Now()
	c.stats.hits++
	ms.hits++
	c.metrics.HitsTotal.Inc()
	return e.value, true
}

// Set stores value under key, attributed to method for per-method
// breakdown reporting. The underlying LRU evicts its own least-recently-
// used entry when full; Set additionally sweeps the touched key if it was
// present but already expired.
func (c *Cache) Set(method, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.lru.Add(key, &entry{
		method:     method,
		value:      value,
		hourBucket: currentHourBucket(),
		expiresAt:  now.Add(c.ttl),
		accessedAt: now,
	})
	c.metrics.CacheSize.Set(float64(c.lru.Len()))
}

// Clear removes every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.metrics.CacheSize.Set(0)
}

func (c *Cache) methodStatsLocked(method string) *methodStats {
	ms, ok := c.stats.perMethod[method]
	if !ok {
		ms = &methodStats{}
		c.stats.perMethod[method] = ms
	}
	return ms
}

// MethodBreakdown is one method's hit/miss counters within Snapshot.
type MethodBreakdown struct {
	Hits   uint64
	Misses uint64
}

// Snapshot is the metrics() result shape from spec §4.2: hits, misses,
// hit_rate, expirations, evictions, total_requests, cache_size,
// utilization, and a per-method breakdown.
type Snapshot struct {
	Hits            uint64
	Misses          uint64
	HitRate         float64
	Expirations     uint64
	Evictions       uint64
	TotalRequests   uint64
	CacheSize       int
	Utilization     float64
	PerMethod       map[string]MethodBreakdown
}

// Metrics returns a point-in-time snapshot of cache performance counters.
func (c *Cache) Metrics() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.stats.hits + c.stats.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.stats.hits) / float64(total)
	}

	perMethod := make(map[string]MethodBreakdown, len(c.stats.perMethod))
	for method, ms := range c.stats.perMethod {
		perMethod[method] = MethodBreakdown{Hits: ms.hits, Misses: ms.misses}
	}

	return Snapshot{
		Hits:          c.stats.hits,
		Misses:        c.stats.misses,
		HitRate:       hitRate,
		Expirations:   c.stats.expirations,
		Evictions:     c.stats.evictions,
		TotalRequests: c.stats.totalRequest,
		CacheSize:     c.lru.Len(),
		Utilization:   float64(c.lru.Len()) / float64(c.maxSize),
		PerMethod:     perMethod,
	}
}

// Info describes the cache's static configuration, useful for admin
// introspection endpoints.
type Info struct {
	TTL     time.Duration
	MaxSize int
	Size    int
}

// Info returns the cache's configuration and current size.
func (c *Cache) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Info{TTL: c.ttl, MaxSize: c.maxSize, Size: c.lru.Len()}
}
