package cache

import (
	"container/list"
	"sync"
	"time"
)

// MinCapacity is the smallest LRU capacity: the active entry plus one being
// loaded next to it.
const MinCapacity = 2

// LRU is a cache bounded by entry count. Pinned keys and the entry inserted
// last are never evicted, so the cache can briefly exceed its capacity
// when everything else is pinned.
type LRU[K comparable, V any] struct {
	capacity int

	items    map[K]*list.Element
	eviction *list.List // front is most recently used
	pinned   map[K]int

	mu    sync.Mutex
	stats Stats
}

type lruEntry[K comparable, V any] struct {
	key       K
	value     V
	timestamp time.Time
	lastUsed  time.Time
	hits      int64
}

// NewLRU returns an LRU holding at most capacity entries. Capacities below
// MinCapacity are raised to it.
func NewLRU[K comparable, V any](capacity int) *LRU[K, V] {
	capacity = max(capacity, MinCapacity)
	return &LRU[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element),
		eviction: list.New(),
		pinned:   make(map[K]int),
		stats:    Stats{Capacity: int64(capacity)},
	}
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}

	c.eviction.MoveToFront(elem)
	entry := elem.Value.(*lruEntry[K, V])
	entry.hits++
	entry.lastUsed = time.Now()

	c.stats.Hits++
	c.stats.LastAccess = entry.lastUsed
	return entry.value, true
}

// Peek returns the value for key without touching recency or counters.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		return elem.Value.(*lruEntry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Touch returns the value for key and marks it most recently used without
// counting a hit or miss.
func (c *LRU[K, V]) Touch(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.eviction.MoveToFront(elem)
	entry := elem.Value.(*lruEntry[K, V])
	entry.lastUsed = time.Now()
	return entry.value, true
}

// Put stores value under key as the most recently used entry and evicts
// least recently used, unpinned entries until the cache fits. It returns
// the evicted keys, oldest first.
func (c *LRU[K, V]) Put(key K, value V) []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		entry := elem.Value.(*lruEntry[K, V])
		entry.value = value
		entry.lastUsed = now
		return c.evict()
	}

	entry := &lruEntry[K, V]{key: key, value: value, timestamp: now, lastUsed: now}
	c.items[key] = c.eviction.PushFront(entry)
	return c.evict()
}

// Pin protects key from eviction until a matching Unpin. Keys may be pinned
// before they are stored.
func (c *LRU[K, V]) Pin(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned[key]++
}

// Unpin releases one Pin of key and evicts anything the pin was holding
// over capacity.
func (c *LRU[K, V]) Unpin(key K) []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := c.pinned[key]; n > 1 {
		c.pinned[key] = n - 1
		return nil
	}
	delete(c.pinned, key)
	return c.evict()
}

// Pinned reports whether key is pinned.
func (c *LRU[K, V]) Pinned(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pinned[key] > 0
}

// Remove deletes key regardless of pins.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	return true
}

// Contains reports whether key is cached without updating recency.
func (c *LRU[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns cached keys from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.items))
	for elem := c.eviction.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*lruEntry[K, V]).key)
	}
	return keys
}

// Resize changes the capacity and evicts down to it.
func (c *LRU[K, V]) Resize(capacity int) []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.capacity = max(capacity, MinCapacity)
	c.stats.Capacity = int64(c.capacity)
	return c.evict()
}

// Clear drops every entry and pin.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element)
	c.pinned = make(map[K]int)
	c.eviction.Init()
}

// Stats returns cache counters.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = int64(len(c.items))
	stats.ItemCount = stats.Size
	return stats.withHitRate()
}

// evict drops least recently used entries until within capacity. The front
// entry and pinned entries are skipped (must be called with lock held).
func (c *LRU[K, V]) evict() []K {
	var evicted []K
	elem := c.eviction.Back()
	for len(c.items) > c.capacity && elem != nil && elem != c.eviction.Front() {
		prev := elem.Prev()
		entry := elem.Value.(*lruEntry[K, V])
		if c.pinned[entry.key] == 0 {
			c.removeElement(elem)
			evicted = append(evicted, entry.key)
			c.stats.Evictions++
			c.stats.LastEvict = time.Now()
		}
		elem = prev
	}
	return evicted
}

// removeElement removes an element from the cache (must be called with lock held).
func (c *LRU[K, V]) removeElement(elem *list.Element) {
	c.eviction.Remove(elem)
	delete(c.items, elem.Value.(*lruEntry[K, V]).key)
}
