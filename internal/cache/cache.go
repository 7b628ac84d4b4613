// Package cache provides an in-memory TTL cache with a size cap.
//
// Expiry is checked lazily on Get and eagerly by Sweep. When the cap is
// reached the oldest insertion is dropped; reads do not refresh an entry's
// position.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Entry is a cached value and the time it was stored.
type Entry[V any] struct {
	Value    V
	StoredAt time.Time
}

type item[V any] struct {
	key   string
	entry Entry[V]
}

// Cache maps string keys to values that stay fresh for a fixed TTL.
type Cache[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	clock   clock.Clock
	order   *list.List // of *item[V], oldest first
	index   map[string]*list.Element
}

// New creates a cache. maxSize <= 0 means unbounded; a nil clock uses the
// wall clock.
func New[V any](ttl time.Duration, maxSize int, clk clock.Clock) *Cache[V] {
	if clk == nil {
		clk = clock.New()
	}
	return &Cache[V]{
		ttl:     ttl,
		maxSize: maxSize,
		clock:   clk,
		order:   list.New(),
		index:   make(map[string]*list.Element),
	}
}

// Get returns the value for key if it is still fresh. Expired entries are
// removed.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.index[key]
	if !ok {
		return zero, false
	}
	it := el.Value.(*item[V])
	if !c.fresh(it.entry) {
		c.remove(el)
		return zero, false
	}
	return it.entry.Value, true
}

// Peek returns the entry for key even if it has expired. It never removes.
func (c *Cache[V]) Peek(key string) (Entry[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return Entry[V]{}, false
	}
	return el.Value.(*item[V]).entry, true
}

// Set stores value under key. Overwriting counts as a new insertion.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.remove(el)
	}
	it := &item[V]{key: key, entry: Entry[V]{Value: value, StoredAt: c.clock.Now()}}
	c.index[key] = c.order.PushBack(it)

	for c.maxSize > 0 && c.order.Len() > c.maxSize {
		c.remove(c.order.Front())
	}
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if !c.fresh(el.Value.(*item[V]).entry) {
			c.remove(el)
			removed++
		}
		el = next
	}
	return removed
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache[V]) fresh(e Entry[V]) bool {
	return c.clock.Since(e.StoredAt) < c.ttl
}

func (c *Cache[V]) remove(el *list.Element) {
	delete(c.index, el.Value.(*item[V]).key)
	c.order.Remove(el)
}
