package cache

import (
	"sync"
	"time"
)

// LRU is the bounded in-process cache (L1). Entries carry their own deadline;
// expired entries count as misses and are evicted lazily on Get.
type LRU struct {
	mu       sync.Mutex
	entries  map[string]*lruNode
	head     *lruNode
	tail     *lruNode
	capacity int

	hits   uint64
	misses uint64
}

type lruNode struct {
	key        string
	value      Entry
	expiresAt  time.Time
	prev, next *lruNode
}

func NewLRU(capacity int) *LRU {
	head := &lruNode{}
	tail := &lruNode{}
	head.next = tail
	tail.prev = head
	return &LRU{
		entries:  make(map[string]*lruNode, capacity),
		head:     head,
		tail:     tail,
		capacity: capacity,
	}
}

func (c *LRU) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.entries[key]
	if !ok {
		c.misses++
		return Entry{}, false
	}
	if !node.expiresAt.IsZero() && time.Now().After(node.expiresAt) {
		c.remove(node)
		delete(c.entries, key)
		c.misses++
		return Entry{}, false
	}
	c.moveToHead(node)
	c.hits++
	return node.value, true
}

func (c *LRU) Put(key string, value Entry, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var deadline time.Time
	if ttl > 0 {
		deadline = time.Now().Add(ttl)
	}

	if node, ok := c.entries[key]; ok {
		node.value = value
		node.expiresAt = deadline
		c.moveToHead(node)
		return
	}

	if len(c.entries) >= c.capacity {
		evicted := c.tail.prev
		c.remove(evicted)
		delete(c.entries, evicted.key)
	}

	node := &lruNode{key: key, value: value, expiresAt: deadline}
	c.entries[key] = node
	c.addToHead(node)
}

func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if node, ok := c.entries[key]; ok {
		c.remove(node)
		delete(c.entries, key)
	}
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Counters returns cumulative hit/miss counts.
func (c *LRU) Counters() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *LRU) addToHead(node *lruNode) {
	node.prev = c.head
	node.next = c.head.next
	c.head.next.prev = node
	c.head.next = node
}

func (c *LRU) remove(node *lruNode) {
	node.prev.next = node.next
	node.next.prev = node.prev
}

func (c *LRU) moveToHead(node *lruNode) {
	c.remove(node)
	c.addToHead(node)
}
