package router

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// DefaultCacheSize bounds the result cache when no size is configured.
const DefaultCacheSize = 100

// cacheKey hashes raw input text. Keys are deliberately independent of
// session and connection, so identical questions share one cached answer.
func cacheKey(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

type cacheEntry struct {
	key      string
	result   *Result
	storedAt time.Time
	elem     *list.Element
}

// cache is an LRU result cache with optional TTL expiry (ttl 0 = entries
// never expire). Safe for concurrent use.
type cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lru     *list.List // front = most recently used
	max     int
	ttl     time.Duration

	now func() time.Time // test hook
}

func newCache(max int, ttl time.Duration) *cache {
	if max <= 0 {
		max = DefaultCacheSize
	}
	return &cache{
		entries: make(map[string]*cacheEntry),
		lru:     list.New(),
		max:     max,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *cache) get(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl {
		c.lru.Remove(e.elem)
		delete(c.entries, key)
		return nil, false
	}
	c.lru.MoveToFront(e.elem)
	return e.result, true
}

func (c *cache) put(key string, res *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.result = res
		e.storedAt = c.now()
		c.lru.MoveToFront(e.elem)
		return
	}

	e := &cacheEntry{key: key, result: res, storedAt: c.now()}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e

	for len(c.entries) > c.max {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		old := oldest.Value.(*cacheEntry)
		c.lru.Remove(oldest)
		delete(c.entries, old.key)
	}
}

func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
