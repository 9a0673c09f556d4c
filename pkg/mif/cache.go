package mif

import (
	"container/list"
	"encoding/binary"
	"math"
	"strings"
	"sync"
	"time"
)

// cacheKey identifies a query result: the query vector's exact bit
// pattern together with the parameters that shape it, since the same vector
// queried with a different k/ks/mpd is not the same cache entry.
type cacheKey struct {
	vec string
	k   int
	ks  int
	mpd int
}

type cacheEntry struct {
	key       cacheKey
	results   []Result
	expiresAt time.Time
}

// QueryCache is a bounded LRU cache with a per-entry TTL: a
// doubly-linked list for recency order plus a map for O(1) lookup,
// guarded by a single mutex since query volume does not warrant
// sharding here.
type QueryCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	ll       *list.List
	items    map[cacheKey]*list.Element

	hits, misses int64
}

// NewQueryCache builds a cache holding at most capacity entries, each
// valid for ttl after insertion.
func NewQueryCache(capacity int, ttl time.Duration) *QueryCache {
	return &QueryCache{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		items:    make(map[cacheKey]*list.Element),
	}
}

// Get returns a cached result set for key if present and not expired.
func (c *QueryCache) Get(key cacheKey) ([]Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.ll.Remove(el)
		delete(c.items, key)
		c.misses++
		return nil, false
	}
	c.ll.MoveToFront(el)
	c.hits++
	return entry.results, true
}

// Put inserts or refreshes a cached result set, evicting the least
// recently used entry if the cache is at capacity.
func (c *QueryCache) Put(key cacheKey, results []Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).results = results
		el.Value.(*cacheEntry).expiresAt = time.Now().Add(c.ttl)
		c.ll.MoveToFront(el)
		return
	}

	entry := &cacheEntry{key: key, results: results, expiresAt: time.Now().Add(c.ttl)}
	el := c.ll.PushFront(entry)
	c.items[key] = el

	if c.capacity > 0 && c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Clear empties the cache without resetting hit/miss counters.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[cacheKey]*list.Element)
}

// Stats reports cumulative hit/miss counts.
func (c *QueryCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// vectorKey renders a query vector's exact bit pattern as a cache-key
// component: faster than formatting floats as decimal text, and exact
// rather than approximate as a rounded-decimal key would be.
func vectorKey(x []float32) string {
	var b strings.Builder
	buf := make([]byte, 4)
	for _, v := range x {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		b.Write(buf)
	}
	return b.String()
}

// QueryCached wraps Query with a bounded LRU+TTL result cache, keyed
// on the query vector and k so that a cache is safely shared across
// repeated queries during a single session.
func (idx *Index) QueryCached(cache *QueryCache, x []float32, k int) ([]Result, error) {
	key := cacheKey{vec: vectorKey(x), k: k, ks: idx.params.Ks, mpd: idx.params.Mpd}
	if results, ok := cache.Get(key); ok {
		return results, nil
	}
	results, err := idx.Query(x, k)
	if err != nil {
		return nil, err
	}
	cache.Put(key, results)
	return results, nil
}
