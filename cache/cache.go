// Package cache memoizes query results behind a pluggable store. The
// cache accelerates reads but is never load-bearing: any backend
// failure degrades to a miss and the caller recomputes.
package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/farmaturno/farmacias-api/logging"
	"github.com/farmaturno/farmacias-api/metrics"
)

// QueryType selects the TTL tier for a cached entry. The tiers mirror
// how fast each result goes stale.
type QueryType string

const (
	QueryOpenNow  QueryType = "open-now" // critical: flips on the hour
	QueryNearby   QueryType = "nearby"   // critical
	QuerySearch   QueryType = "search"   // high
	QueryStats    QueryType = "stats"    // high
	QueryCommunes QueryType = "communes" // medium
	QueryStatic   QueryType = "static"   // low
)

// Store is a cache backend. Implementations must be safe for
// concurrent use. Flush must be atomic: a Get that starts after Flush
// returns never observes a pre-flush value.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Flush(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
	SizeBytes(ctx context.Context) (int64, error)
	Close() error
}

// TTLPolicy holds the per-tier expirations.
type TTLPolicy struct {
	Critical time.Duration
	High     time.Duration
	Medium   time.Duration
	Low      time.Duration
}

// DefaultTTLPolicy mirrors the standard deployment values.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Critical: 5 * time.Minute,
		High:     30 * time.Minute,
		Medium:   6 * time.Hour,
		Low:      24 * time.Hour,
	}
}

// For returns the TTL for a query type.
func (p TTLPolicy) For(qt QueryType) time.Duration {
	switch qt {
	case QueryOpenNow, QueryNearby:
		return p.Critical
	case QuerySearch, QueryStats:
		return p.High
	case QueryCommunes:
		return p.Medium
	default:
		return p.Low
	}
}

// Stats is a point-in-time snapshot of cache behavior.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	EntryCount  int64 `json:"entry_count"`
	ApproxBytes int64 `json:"approx_bytes"`
}

// Cache wraps a Store with hit/miss accounting and tiered TTLs. A nil
// store disables caching entirely; every read is then a miss.
type Cache struct {
	store  Store
	policy TTLPolicy

	hits   atomic.Int64
	misses atomic.Int64
}

func New(store Store, policy TTLPolicy) *Cache {
	return &Cache{store: store, policy: policy}
}

// Enabled reports whether a backend is attached.
func (c *Cache) Enabled() bool {
	return c != nil && c.store != nil
}

// Policy returns the TTL policy in force.
func (c *Cache) Policy() TTLPolicy {
	if c == nil {
		return TTLPolicy{}
	}
	return c.policy
}

// Get returns the cached value for key. Backend errors are logged and
// surface as a miss so queries keep working without the cache.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}

	value, found, err := c.store.Get(ctx, key)
	if err != nil {
		logging.Warn("Cache read failed, serving without cache", "key", key, "error", err)
		c.misses.Add(1)
		metrics.CacheMisses.Inc()
		return nil, false
	}
	if !found {
		c.misses.Add(1)
		metrics.CacheMisses.Inc()
		return nil, false
	}

	c.hits.Add(1)
	metrics.CacheHits.Inc()
	return value, true
}

// Put stores a value under the TTL of its query type. Failures are
// logged and dropped.
func (c *Cache) Put(ctx context.Context, qt QueryType, key string, value []byte) {
	if !c.Enabled() {
		return
	}
	if err := c.store.Set(ctx, key, value, c.policy.For(qt)); err != nil {
		logging.Warn("Cache write failed", "key", key, "error", err)
	}
}

// Invalidate removes a single entry.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if !c.Enabled() {
		return nil
	}
	return c.store.Delete(ctx, key)
}

// InvalidateAll clears every entry. Unlike reads, a failure here is
// returned: silently keeping stale data after a dataset refresh would
// serve wrong results for a full TTL.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.store.Flush(ctx)
}

// Stats reports hit/miss counters and backend size figures. Size
// errors degrade to zeroes so the stats endpoint stays available.
func (c *Cache) Stats(ctx context.Context) Stats {
	s := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	if !c.Enabled() {
		return s
	}

	if count, err := c.store.Count(ctx); err == nil {
		s.EntryCount = count
	} else {
		logging.Warn("Cache count unavailable", "error", err)
	}
	if size, err := c.store.SizeBytes(ctx); err == nil {
		s.ApproxBytes = size
	} else {
		logging.Warn("Cache size unavailable", "error", err)
	}
	return s
}

// Close releases the backend.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.store.Close()
}

// Key builds a deterministic fingerprint for a query: the type, then
// the sorted parameters, then an hour bucket for time-sensitive types
// so "open now" answers age out with the clock even inside their TTL.
func Key(qt QueryType, params map[string]string, now time.Time) string {
	parts := []string{string(qt)}

	if len(params) > 0 {
		names := make([]string, 0, len(params))
		for name, value := range params {
			if value == "" {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)

		kv := make([]string, 0, len(names))
		for _, name := range names {
			kv = append(kv, name+":"+params[name])
		}
		if len(kv) > 0 {
			parts = append(parts, strings.Join(kv, "_"))
		}
	}

	if qt == QueryOpenNow || qt == QueryNearby {
		parts = append(parts, "hour:"+now.Format("20060102_15"))
	}

	return strings.Join(parts, ":")
}

// Coord formats a coordinate for use in a cache key. Four decimals is
// about 11 m of precision, enough to share entries between nearby
// callers without changing results.
func Coord(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
