// Package marketdata implements the market-data cache and live-price
// stream fan-out (spec §4.5, the market-data half of component C5): a
// keyed TTL store with singleflight-coalesced upstream fetches, and a
// stream manager that republishes broker quote ticks onto the
// events.Bus conflated broadcast channel.
package marketdata

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/indiatrader/core/internal/apperr"
	"github.com/indiatrader/core/internal/domain"
)

// Fetcher fetches a fresh quote for key on a cache miss, e.g. the broker
// REST adapter's quote endpoint.
type Fetcher func(ctx context.Context, key string) (domain.MarketCacheEntry, error)

// Cache is the keyed store from instrument_key to the latest quote plus a
// TTL (spec §4.5 "Market-data cache"). Concurrent misses for the same key
// coalesce to a single upstream fetch via golang.org/x/sync/singleflight
// — already present transitively in this module's dependency graph as a
// build dependency of the sqlite driver toolchain, and the canonical
// ecosystem implementation of exactly the pattern spec §8 property 6 and
// the glossary name "singleflight" after, so promoting it to a direct
// import is the natural choice over hand-rolling the same map-of-futures.
// Eviction is LRU over already-expired entries first (spec §4.5 "Cache is
// bounded; eviction is LRU over expired entries first").
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]*list.Element // key -> node in lru
	lru      *list.List               // front = most recently touched
	group    singleflight.Group
}

type node struct {
	key   string
	entry domain.MarketCacheEntry
}

// New constructs a bounded cache with the given default TTL and capacity
// (spec config `cache_ttl`, `cache_capacity`).
func New(ttl time.Duration, capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached entry for key if unexpired; otherwise it fetches
// through fetch, populates the cache, and returns the fresh entry.
// Concurrent misses for the same key coalesce into a single call to fetch
// (spec §8 property 6, §4.5 singleflight requirement); every concurrent
// caller receives the identical result.
func (c *Cache) Get(ctx context.Context, key string, now time.Time, fetch Fetcher) (domain.MarketCacheEntry, error) {
	if entry, ok := c.peek(key, now); ok {
		return entry, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the singleflight key: another goroutine may have
		// populated the cache while we were waiting to enter Do.
		if entry, ok := c.peek(key, now); ok {
			return entry, nil
		}
		entry, err := fetch(ctx, key)
		if err != nil {
			return domain.MarketCacheEntry{}, err
		}
		if entry.TTLDeadline.IsZero() {
			entry.TTLDeadline = now.Add(c.ttl)
		}
		if entry.ReceivedAt.IsZero() {
			entry.ReceivedAt = now
		}
		c.Put(entry)
		return entry, nil
	})
	if err != nil {
		return domain.MarketCacheEntry{}, apperr.New(apperr.UpstreamTransient, "marketdata.Cache.Get", err).WithSymbol(key)
	}
	return v.(domain.MarketCacheEntry), nil
}

// peek returns the cached entry for key without touching the upstream,
// reporting ok=false if absent or expired.
func (c *Cache) peek(key string, now time.Time) (domain.MarketCacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return domain.MarketCacheEntry{}, false
	}
	n := el.Value.(*node)
	if n.entry.Expired(now) {
		return domain.MarketCacheEntry{}, false
	}
	c.lru.MoveToFront(el)
	return n.entry, true
}

// Put overwrites (or inserts) the entry for its InstrumentKey, atomically
// from the reader's point of view — a reader never observes a torn quote
// (spec §5 "Market-data cache readers never see a torn quote; a quote
// update is applied atomically").
func (c *Cache) Put(entry domain.MarketCacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[entry.InstrumentKey]; ok {
		el.Value.(*node).entry = entry
		c.lru.MoveToFront(el)
		return
	}

	el := c.lru.PushFront(&node{key: entry.InstrumentKey, entry: entry})
	c.entries[entry.InstrumentKey] = el
	c.evictIfNeeded()
}

// evictIfNeeded drops entries once the cache exceeds capacity, preferring
// already-expired entries (scanned oldest-touched first) before falling
// back to the true LRU tail. Caller must hold mu.
func (c *Cache) evictIfNeeded() {
	if c.lru.Len() <= c.capacity {
		return
	}
	now := time.Now()

	for e := c.lru.Back(); e != nil && c.lru.Len() > c.capacity; {
		prev := e.Prev()
		n := e.Value.(*node)
		if n.entry.Expired(now) {
			c.removeElement(e)
		}
		e = prev
	}
	for c.lru.Len() > c.capacity {
		c.removeElement(c.lru.Back())
	}
}

func (c *Cache) removeElement(el *list.Element) {
	n := el.Value.(*node)
	delete(c.entries, n.key)
	c.lru.Remove(el)
}

// PeekNoFetch returns the cached entry for key without ever calling
// upstream, reporting ok=false if absent or expired. Used by callers that
// must never block on a network round trip, such as the order router's
// paper-mode fill simulator, which needs "whatever price is already
// resident" rather than a fresh fetch.
func (c *Cache) PeekNoFetch(key string) (domain.MarketCacheEntry, bool) {
	return c.peek(key, time.Now())
}

// Len returns the current number of cached entries, for diagnostics and
// tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
