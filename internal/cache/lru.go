// Package cache stores fetched template documents by key, either in process
// (LRU) or in Redis so several server instances share one copy.
package cache

import (
	"context"
	"sync"
)

// Store is a byte cache keyed by string
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// LRU is a thread-safe least recently used byte cache bounded by entry count
// and total size
type LRU struct {
	mutex    sync.Mutex
	capacity int
	maxBytes int64
	size     int64
	items    map[string]*node
	head     *node // most recently used
	tail     *node // least recently used
	hits     int64
	misses   int64
}

type node struct {
	key   string
	value []byte
	prev  *node
	next  *node
}

// NewLRU creates an LRU holding at most capacity entries and maxBytes bytes.
// A non-positive maxBytes disables the size bound.
func NewLRU(capacity int, maxBytes int64) *LRU {
	if capacity <= 0 {
		capacity = 32
	}

	c := &LRU{
		capacity: capacity,
		maxBytes: maxBytes,
		items:    make(map[string]*node),
	}
	c.head = &node{}
	c.tail = &node{}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get returns a copy of the cached value and marks it recently used
func (c *LRU) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if n, ok := c.items[key]; ok {
		c.moveToFront(n)
		c.hits++
		return append([]byte(nil), n.value...), true, nil
	}
	c.misses++
	return nil, false, nil
}

// Set stores a copy of value. Values larger than the size bound are not
// cached.
func (c *LRU) Set(_ context.Context, key string, value []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.maxBytes > 0 && int64(len(value)) > c.maxBytes {
		return nil
	}
	value = append([]byte(nil), value...)

	if n, ok := c.items[key]; ok {
		c.size += int64(len(value)) - int64(len(n.value))
		n.value = value
		c.moveToFront(n)
	} else {
		n := &node{key: key, value: value}
		c.addToFront(n)
		c.items[key] = n
		c.size += int64(len(value))
	}

	for len(c.items) > c.capacity || (c.maxBytes > 0 && c.size > c.maxBytes) {
		c.evict()
	}
	return nil
}

// Delete removes key
func (c *LRU) Delete(_ context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if n, ok := c.items[key]; ok {
		c.remove(n)
	}
	return nil
}

// Len returns the number of cached entries
func (c *LRU) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.items)
}

// Keys returns the keys from most to least recently used
func (c *LRU) Keys() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	keys := make([]string, 0, len(c.items))
	for cur := c.head.next; cur != c.tail; cur = cur.next {
		keys = append(keys, cur.key)
	}
	return keys
}

// Stats returns hit and occupancy statistics
func (c *LRU) Stats() Stats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	total := c.hits + c.misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(c.hits) / float64(total) * 100
	}
	return Stats{
		Hits:     c.hits,
		Misses:   c.misses,
		HitRate:  hitRate,
		Entries:  len(c.items),
		Bytes:    c.size,
		Capacity: c.capacity,
	}
}

func (c *LRU) moveToFront(n *node) {
	c.unlink(n)
	c.addToFront(n)
}

func (c *LRU) addToFront(n *node) {
	n.prev = c.head
	n.next = c.head.next
	c.head.next.prev = n
	c.head.next = n
}

func (c *LRU) unlink(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

func (c *LRU) remove(n *node) {
	c.unlink(n)
	delete(c.items, n.key)
	c.size -= int64(len(n.value))
}

func (c *LRU) evict() {
	if lru := c.tail.prev; lru != c.head {
		c.remove(lru)
	}
}

// Stats describes cache performance
type Stats struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hit_rate_percent"`
	Entries  int     `json:"entries"`
	Bytes    int64   `json:"bytes"`
	Capacity int     `json:"max_entries"`
}
