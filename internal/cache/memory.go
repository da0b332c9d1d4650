package cache

import (
	"container/list"
	"sync"
	"time"
)

// MemoryCache is the in-process tier with LRU eviction. It is bounded
// by both an entry count and a byte ceiling; crossing either evicts
// from the cold end. Entries may carry a decoded handle whose release
// hook runs when the entry leaves the cache, so decoded audio never
// outlives its payload.
type MemoryCache struct {
	maxEntries int
	maxBytes   int64
	size       int64

	// LRU implementation
	items    map[string]*list.Element
	eviction *list.List

	// Synchronization
	mu sync.Mutex

	// Metrics
	stats Stats
}

// memoryEntry represents an entry in the memory cache
type memoryEntry struct {
	key       string
	value     []byte
	size      int64
	timestamp time.Time
	hits      int64

	handle  any
	release func()
}

// NewMemoryCache creates a memory cache bounded by maxEntries and
// maxBytes. A zero bound means unbounded on that axis.
func NewMemoryCache(maxEntries int, maxBytes int64) *MemoryCache {
	return &MemoryCache{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		items:      make(map[string]*list.Element),
		eviction:   list.New(),
		stats: Stats{
			MaxBytes:   maxBytes,
			MaxEntries: maxEntries,
		},
	}
}

// Get retrieves a payload and its attached handle, if any.
func (c *MemoryCache) Get(key string) ([]byte, any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, nil, false
	}

	c.eviction.MoveToFront(elem)
	entry := elem.Value.(*memoryEntry)
	entry.hits++

	c.stats.Hits++
	c.stats.LastAccess = time.Now()
	return entry.value, entry.handle, true
}

// Put stores a payload. An existing entry is replaced and its handle
// released, since the handle belonged to the old payload.
func (c *MemoryCache) Put(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	valueSize := int64(len(value))
	if c.maxBytes > 0 && valueSize > c.maxBytes {
		return ErrItemTooLarge
	}

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		entry := elem.Value.(*memoryEntry)

		c.size += valueSize - entry.size
		entry.releaseHandle()
		entry.value = value
		entry.size = valueSize
		entry.timestamp = time.Now()

		c.evictToBounds()
		c.stats.Bytes = c.size
		return nil
	}

	entry := &memoryEntry{
		key:       key,
		value:     value,
		size:      valueSize,
		timestamp: time.Now(),
	}
	c.items[key] = c.eviction.PushFront(entry)
	c.size += valueSize

	c.evictToBounds()
	c.stats.Bytes = c.size
	return nil
}

// Attach associates a decoded handle with an existing entry. release
// runs exactly once, when the entry is evicted, deleted, replaced, or
// the cache is cleared; it may run under the cache lock and must not
// call back into the cache. Attaching to a missing key releases
// immediately so the caller never leaks the handle.
func (c *MemoryCache) Attach(key string, handle any, release func()) {
	c.mu.Lock()

	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		if release != nil {
			release()
		}
		return
	}

	entry := elem.Value.(*memoryEntry)
	old := entry.takeRelease()
	entry.handle = handle
	entry.release = release
	c.mu.Unlock()

	if old != nil {
		old()
	}
}

// Delete removes an entry and releases its handle.
func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	return nil
}

// Clear removes all entries, releasing every handle.
func (c *MemoryCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, elem := range c.items {
		elem.Value.(*memoryEntry).releaseHandle()
	}
	c.items = make(map[string]*list.Element)
	c.eviction.Init()
	c.size = 0
	c.stats.Bytes = 0

	return nil
}

// Size returns the current payload bytes held.
func (c *MemoryCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.size
}

// Contains checks for a key without updating recency.
func (c *MemoryCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.items[key]
	return ok
}

// Stats returns a snapshot of the tier's counters.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Bytes = c.size
	stats.Entries = len(c.items)
	return stats
}

// Keys returns all keys currently held.
func (c *MemoryCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	return keys
}

// Prune removes entries older than maxAge and reports how many.
func (c *MemoryCache) Prune(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	pruned := 0

	elem := c.eviction.Back()
	for elem != nil {
		prev := elem.Prev()
		if elem.Value.(*memoryEntry).timestamp.Before(cutoff) {
			c.removeElement(elem)
			pruned++
		}
		elem = prev
	}
	return pruned
}

// evictToBounds evicts cold entries until both ceilings hold (must be
// called with lock held).
func (c *MemoryCache) evictToBounds() {
	for c.eviction.Len() > 0 {
		over := (c.maxBytes > 0 && c.size > c.maxBytes) ||
			(c.maxEntries > 0 && c.eviction.Len() > c.maxEntries)
		if !over {
			return
		}
		elem := c.eviction.Back()
		if elem == nil {
			return
		}
		c.removeElement(elem)
		c.stats.Evictions++
		c.stats.LastEvict = time.Now()
	}
}

// removeElement removes an element and releases its handle (must be
// called with lock held).
func (c *MemoryCache) removeElement(elem *list.Element) {
	c.eviction.Remove(elem)
	entry := elem.Value.(*memoryEntry)
	delete(c.items, entry.key)
	c.size -= entry.size
	entry.releaseHandle()
}

func (e *memoryEntry) releaseHandle() {
	if release := e.takeRelease(); release != nil {
		release()
	}
}

func (e *memoryEntry) takeRelease() func() {
	release := e.release
	e.handle = nil
	e.release = nil
	return release
}
