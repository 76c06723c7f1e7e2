package cache

import (
	"container/list"
	"sync"
	"time"
)

// TTLCache is a bounded, TTL-expiring LRU cache. It backs the explorer
// client so duplicate (origin_key, address) rows in one batch hit the
// upstream API only once.
type TTLCache[K comparable, V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	byKey   map[K]*list.Element
	recency *list.List // front = most recently used

	clock func() time.Time
}

type slot[K comparable, V any] struct {
	key     K
	value   V
	staleAt time.Time
}

// New creates a TTLCache holding at most maxSize entries, each valid for ttl.
func New[K comparable, V any](maxSize int, ttl time.Duration) *TTLCache[K, V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &TTLCache[K, V]{
		maxSize: maxSize,
		ttl:     ttl,
		byKey:   make(map[K]*list.Element, maxSize),
		recency: list.New(),
		clock:   time.Now,
	}
}

// Get returns the cached value for key if present and fresh.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.byKey[key]
	if !ok {
		return zero, false
	}
	s := elem.Value.(*slot[K, V])
	if c.clock().After(s.staleAt) {
		c.drop(elem)
		return zero, false
	}
	c.recency.MoveToFront(elem)
	return s.value, true
}

// Put stores value under key, refreshing its TTL and evicting the least
// recently used entry when the cache is full.
func (c *TTLCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.byKey[key]; ok {
		s := elem.Value.(*slot[K, V])
		s.value = value
		s.staleAt = c.clock().Add(c.ttl)
		c.recency.MoveToFront(elem)
		return
	}

	if c.recency.Len() >= c.maxSize {
		if oldest := c.recency.Back(); oldest != nil {
			c.drop(oldest)
		}
	}
	c.byKey[key] = c.recency.PushFront(&slot[K, V]{
		key:     key,
		value:   value,
		staleAt: c.clock().Add(c.ttl),
	})
}

// Len reports the number of stored entries, including any that have expired
// but not yet been evicted.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

func (c *TTLCache[K, V]) drop(elem *list.Element) {
	c.recency.Remove(elem)
	delete(c.byKey, elem.Value.(*slot[K, V]).key)
}
