// Package cache provides a bounded in-memory TTL cache with insertion-order
// eviction. It backs the risk verdict cache and the catalog response caches.
package cache

import (
	"sync"
	"time"
)

const (
	defaultTTL           = 5 * time.Minute
	defaultMaxSize       = 1000
	defaultSweepInterval = time.Minute
)

// Stats summarises cache occupancy and effectiveness.
type Stats struct {
	Size    int
	MaxSize int
	HitRate float64
}

type entry[V any] struct {
	value     V
	createdAt time.Time
	expiresAt time.Time
	hits      int64
}

// Cache is a keyed store with per-entry expiry and a bounded size. Entries past
// their expiry are treated as absent even before the sweeper removes them.
// Eviction past MaxSize removes the oldest-inserted key, which approximates LRU;
// callers must not depend on recency-based eviction.
type Cache[V any] struct {
	mu       sync.Mutex
	entries  map[string]*entry[V]
	order    []string
	ttl      time.Duration
	maxSize  int
	hits     int64
	misses   int64
	now      func() time.Time
	stopOnce sync.Once
	stop     chan struct{}
}

// Option customises cache construction.
type Option[V any] func(*Cache[V])

// WithTTL overrides the default entry lifetime.
func WithTTL[V any](ttl time.Duration) Option[V] {
	return func(c *Cache[V]) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMaxSize bounds the number of live entries.
func WithMaxSize[V any](size int) Option[V] {
	return func(c *Cache[V]) {
		if size > 0 {
			c.maxSize = size
		}
	}
}

// WithClock injects a deterministic clock for tests.
func WithClock[V any](clock func() time.Time) Option[V] {
	return func(c *Cache[V]) {
		if clock != nil {
			c.now = clock
		}
	}
}

// New constructs a cache and starts its background sweeper. Call Close to stop
// the sweeper when the cache is no longer needed.
func New[V any](sweepInterval time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		entries: make(map[string]*entry[V]),
		ttl:     defaultTTL,
		maxSize: defaultMaxSize,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	go c.sweepLoop(sweepInterval)
	return c
}

// Set stores a value under key. An optional ttl overrides the cache default.
func (c *Cache[V]) Set(key string, value V, ttl ...time.Duration) {
	effective := c.ttl
	if len(ttl) > 0 && ttl[0] > 0 {
		effective = ttl[0]
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = &entry[V]{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(effective),
	}

	for len(c.entries) > c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if _, exists := c.entries[oldest]; exists {
			delete(c.entries, oldest)
		}
	}
}

// Get returns the live value for key. Expired entries are removed as a side
// effect and reported as absent.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.misses++
		return zero, false
	}
	e.hits++
	c.hits++
	return e.value, true
}

// Has reports whether a live entry exists for key without counting a hit.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return false
	}
	return true
}

// Delete removes the entry for key, reporting whether one existed.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	c.removeFromOrder(key)
	return true
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
	c.order = nil
}

// Stats returns current occupancy and hit-rate figures.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		HitRate: rate,
	}
}

// Close stops the background sweeper.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// Sweep removes every expired entry and returns the number removed.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			c.removeFromOrder(key)
			removed++
		}
	}
	return removed
}

func (c *Cache[V]) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache[V]) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
