// Package cache implements the bounded read cache that sits in front of the
// primary mapping of the storage engine.
//
// The cache only mirrors entries, the storage engine stays the owner of record.
// Eviction therefore never writes anything back, evicted entries are simply dropped.
//
// Two eviction policies are supported:
//   - FIFO (default): the first inserted key is evicted first, reads never change the order.
//   - LRU: reads move a key to the back of the eviction order.
//
// Thread-safety: The cache is not thread-safe. The storage engine serializes all
// access with its own mutex.
package cache

import (
	"container/list"
	"fmt"
	"strings"

	"github.com/ValentinKolb/eKV/lib/db"
)

// DefaultCapacity is used when a capacity <= 0 is requested
const DefaultCapacity = 100

// Policy identifies an eviction strategy
type Policy string

const (
	PolicyFIFO Policy = "fifo" // evict in insertion order
	PolicyLRU  Policy = "lru"  // evict least recently read or written
)

// ParsePolicy converts a string (case-insensitive) to a Policy
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyFIFO, "":
		return PolicyFIFO, nil
	case PolicyLRU:
		return PolicyLRU, nil
	default:
		return "", fmt.Errorf("invalid cache policy %q (expected fifo or lru)", s)
	}
}

// item is the value stored in the eviction list
type item struct {
	key   string
	entry db.Entry
}

// Cache is a bounded key -> entry mapping.
// The front of the order list is always the next key to evict.
type Cache struct {
	capacity int
	policy   Policy
	order    *list.List
	items    map[string]*list.Element
}

// New creates an empty cache
func New(capacity int, policy Policy) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if policy == "" {
		policy = PolicyFIFO
	}
	return &Cache{
		capacity: capacity,
		policy:   policy,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

// Lookup returns the cached entry for key.
// With the LRU policy a hit moves the key to the back of the eviction order.
func (c *Cache) Lookup(key string) (db.Entry, bool) {
	el, ok := c.items[key]
	if !ok {
		return db.Entry{}, false
	}
	if c.policy == PolicyLRU {
		c.order.MoveToBack(el)
	}
	return el.Value.(*item).entry, true
}

// Insert adds or replaces the entry for key.
// If the key is new and the cache is full, one key is evicted first.
// Replacing an existing key keeps its FIFO position. The evicted key (if any) is returned.
func (c *Cache) Insert(key string, entry db.Entry) (evicted string, ok bool) {
	if el, exists := c.items[key]; exists {
		el.Value.(*item).entry = entry
		if c.policy == PolicyLRU {
			c.order.MoveToBack(el)
		}
		return "", false
	}

	if len(c.items) >= c.capacity {
		if oldest := c.order.Front(); oldest != nil {
			evicted = oldest.Value.(*item).key
			c.order.Remove(oldest)
			delete(c.items, evicted)
			ok = true
		}
	}

	c.items[key] = c.order.PushBack(&item{key: key, entry: entry})
	return evicted, ok
}

// Invalidate removes key from the cache, it returns whether the key was cached
func (c *Cache) Invalidate(key string) bool {
	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.items, key)
	return true
}

// Clear removes all entries
func (c *Cache) Clear() {
	c.order.Init()
	c.items = make(map[string]*list.Element, c.capacity)
}

// Len returns the number of cached keys
func (c *Cache) Len() int { return len(c.items) }

// Cap returns the capacity of the cache
func (c *Cache) Cap() int { return c.capacity }

// Policy returns the eviction policy of the cache
func (c *Cache) Policy() Policy { return c.policy }

// Keys returns the cached keys in eviction order (next to be evicted first)
func (c *Cache) Keys() []string {
	keys := make([]string, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*item).key)
	}
	return keys
}
