package cache

import (
	"container/list"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LRUCache is a size-bounded cache whose entries expire ttl after their last
// write. Created WithSliding, reads extend the expiry too.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	sliding bool
	items   map[string]*list.Element
	lru     *list.List
	onEvict func(key string, value T)

	hits   atomic.Int64
	misses atomic.Int64
	now    func() time.Time
}

type entry[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

// Stats reports lookups since creation.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int
}

// Option configures an LRUCache.
type Option[T any] func(*LRUCache[T])

// WithSliding makes reads refresh an entry's expiry.
func WithSliding[T any]() Option[T] {
	return func(c *LRUCache[T]) { c.sliding = true }
}

// WithOnEvict registers a callback run, outside the lock, for every entry
// that leaves the cache by expiry or capacity.
func WithOnEvict[T any](fn func(key string, value T)) Option[T] {
	return func(c *LRUCache[T]) { c.onEvict = fn }
}

// NewLRUCache creates a new LRU cache with TTL
func NewLRUCache[T any](maxSize int, ttl time.Duration, opts ...Option[T]) *LRUCache[T] {
	c := &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a live value and marks it most recently used.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	var zero T
	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		return zero, false
	}
	e := elem.Value.(*entry[T])
	now := c.now()
	if now.After(e.expiresAt) {
		c.removeElement(elem)
		c.mu.Unlock()
		c.misses.Add(1)
		c.evicted(e)
		return zero, false
	}
	if c.sliding {
		e.expiresAt = now.Add(c.ttl)
	}
	c.lru.MoveToFront(elem)
	c.mu.Unlock()
	c.hits.Add(1)
	return e.data, true
}

// Set stores a value, evicting the least recently used entry when full.
func (c *LRUCache[T]) Set(key string, data T) {
	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		elem.Value = &entry[T]{key: key, data: data, expiresAt: c.now().Add(c.ttl)}
		c.lru.MoveToFront(elem)
		c.mu.Unlock()
		return
	}
	dropped := c.insertLocked(key, data)
	c.mu.Unlock()
	if dropped != nil {
		c.evicted(dropped)
	}
}

// GetOrCreate returns the live value under key, creating it with create when
// absent. create runs under the cache lock and must not call back into c.
func (c *LRUCache[T]) GetOrCreate(key string, create func() T) T {
	c.mu.Lock()
	now := c.now()
	var expired *entry[T]
	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[T])
		if !now.After(e.expiresAt) {
			if c.sliding {
				e.expiresAt = now.Add(c.ttl)
			}
			c.lru.MoveToFront(elem)
			c.mu.Unlock()
			c.hits.Add(1)
			return e.data
		}
		c.removeElement(elem)
		expired = e
	}
	v := create()
	dropped := c.insertLocked(key, v)
	c.mu.Unlock()

	c.misses.Add(1)
	if expired != nil {
		c.evicted(expired)
	}
	if dropped != nil {
		c.evicted(dropped)
	}
	return v
}

func (c *LRUCache[T]) insertLocked(key string, data T) *entry[T] {
	c.items[key] = c.lru.PushFront(&entry[T]{key: key, data: data, expiresAt: c.now().Add(c.ttl)})
	if c.maxSize <= 0 || c.lru.Len() <= c.maxSize {
		return nil
	}
	oldest := c.lru.Back()
	if oldest == nil {
		return nil
	}
	c.removeElement(oldest)
	return oldest.Value.(*entry[T])
}

// Delete removes a key without running the eviction callback.
func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// DeletePrefix removes every key starting with prefix and returns the count.
func (c *LRUCache[T]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, elem := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeElement(elem)
			n++
		}
	}
	return n
}

// Range calls fn for every live entry until fn returns false. fn runs on a
// snapshot, so it may call back into the cache.
func (c *LRUCache[T]) Range(fn func(key string, value T) bool) {
	c.mu.Lock()
	now := c.now()
	snapshot := make([]*entry[T], 0, len(c.items))
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*entry[T])
		if !now.After(e.expiresAt) {
			snapshot = append(snapshot, e)
		}
	}
	c.mu.Unlock()
	for _, e := range snapshot {
		if !fn(e.key, e.data) {
			return
		}
	}
}

func (c *LRUCache[T]) removeElement(elem *list.Element) {
	e := elem.Value.(*entry[T])
	delete(c.items, e.key)
	c.lru.Remove(elem)
}

func (c *LRUCache[T]) evicted(e *entry[T]) {
	if c.onEvict != nil {
		c.onEvict(e.key, e.data)
	}
}

// CleanExpired removes all expired entries and returns count of removed items
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	now := c.now()
	var removed []*entry[T]
	for elem := c.lru.Front(); elem != nil; {
		next := elem.Next()
		e := elem.Value.(*entry[T])
		if now.After(e.expiresAt) {
			c.removeElement(elem)
			removed = append(removed, e)
		}
		elem = next
	}
	c.mu.Unlock()

	for _, e := range removed {
		c.evicted(e)
	}
	return len(removed)
}

// Size returns the current number of items in the cache
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns hit and miss counters plus the current size.
func (c *LRUCache[T]) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: c.Size()}
}
