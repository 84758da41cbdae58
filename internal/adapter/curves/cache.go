package curves

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/hydrometry-etl/internal/domain"
	"github.com/couchcryptid/hydrometry-etl/internal/observability"
	"github.com/jonboulle/clockwork"
)

// CachedProvider wraps a CurveProvider with an in-memory LRU cache whose
// entries expire after ttl, so that curve revisions are eventually seen.
type CachedProvider struct {
	inner   domain.CurveProvider
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedProvider creates a cache decorator around a provider. A zero ttl
// keeps entries until they are evicted.
func NewCachedProvider(inner domain.CurveProvider, maxEntries int, ttl time.Duration, metrics *observability.Metrics) *CachedProvider {
	return &CachedProvider{
		inner:   inner,
		cache:   newLRUCache(maxEntries, ttl, clockwork.NewRealClock()),
		metrics: metrics,
	}
}

func (c *CachedProvider) CurveSet(ctx context.Context, station string) (domain.CurveSet, error) {
	if set, ok := c.cache.get(station); ok {
		c.metrics.CurveCache.WithLabelValues("hit").Inc()
		return set, nil
	}
	c.metrics.CurveCache.WithLabelValues("miss").Inc()

	set, err := c.inner.CurveSet(ctx, station)
	if err != nil {
		return set, err
	}
	// Empty sets are not cached so a station whose curves are published later is picked up.
	if !set.Empty() {
		c.cache.put(station, set)
	}
	return set, nil
}

// lruCache is a thread-safe LRU cache of curve sets keyed by station.
type lruCache struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock

	mu      sync.Mutex
	order   *list.List // front = most recently used
	entries map[string]*list.Element
}

type cacheEntry struct {
	station  string
	set      domain.CurveSet
	storedAt time.Time
}

func newLRUCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *lruCache) get(station string) (domain.CurveSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[station]
	if !ok {
		return domain.CurveSet{}, false
	}
	e := el.Value.(*cacheEntry)
	if c.ttl > 0 && c.clock.Since(e.storedAt) >= c.ttl {
		c.order.Remove(el)
		delete(c.entries, station)
		return domain.CurveSet{}, false
	}
	c.order.MoveToFront(el)
	return e.set, true
}

func (c *lruCache) put(station string, set domain.CurveSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[station]; ok {
		e := el.Value.(*cacheEntry)
		e.set = set
		e.storedAt = c.clock.Now()
		c.order.MoveToFront(el)
		return
	}

	c.entries[station] = c.order.PushFront(&cacheEntry{station: station, set: set, storedAt: c.clock.Now()})
	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).station)
	}
}
