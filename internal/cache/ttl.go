package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/valuation-session-cli/internal/ports"
)

type entry[V any] struct {
	key          string
	value        V
	lastAccessed time.Time
	expiresAt    time.Time
}

type Stats struct {
	Size        int
	MaxSize     int
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
}

// Cache is a fixed-capacity cache with LRU eviction and TTL expiry. The
// explicit expiresAt field plus the sweeper is the authoritative expiry
// mechanism; BucketKey is available as secondary hardening for callers that
// want keys to roll over every TTL window.
type Cache[V any] struct {
	maxSize int
	ttl     time.Duration
	clock   ports.Clock

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List

	hits        int64
	misses      int64
	evictions   int64
	expirations int64

	stop     chan struct{}
	stopOnce sync.Once
}

func New[V any](maxSize int, ttl time.Duration, clock ports.Clock) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 128
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}

	c := &Cache[V]{
		maxSize: maxSize,
		ttl:     ttl,
		clock:   clock,
		entries: map[string]*list.Element{},
		lru:     list.New(),
		stop:    make(chan struct{}),
	}
	go c.sweepLoop(sweepIntervalFor(ttl))

	return c
}

func (c *Cache[V]) Set(key string, value V) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		ent := elem.Value.(*entry[V])
		ent.value = value
		ent.lastAccessed = now
		ent.expiresAt = now.Add(c.ttl)
		c.lru.MoveToFront(elem)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = c.lru.PushFront(&entry[V]{
		key:          key,
		value:        value,
		lastAccessed: now,
		expiresAt:    now.Add(c.ttl),
	})
}

func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}

	ent := elem.Value.(*entry[V])
	if now.After(ent.expiresAt) {
		c.removeElement(elem)
		c.expirations++
		c.misses++
		return zero, false
	}

	ent.lastAccessed = now
	c.lru.MoveToFront(elem)
	c.hits++

	return ent.value, true
}

func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeElement(elem)
	}
}

func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = map[string]*list.Element{}
	c.lru.Init()
}

// Cleanup removes expired entries proactively, bounding memory even when
// nothing reads the expired keys.
func (c *Cache[V]) Cleanup() {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if ent := elem.Value.(*entry[V]); now.After(ent.expiresAt) {
			c.removeElement(elem)
			c.expirations++
		}
		elem = prev
	}
}

func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Size:        len(c.entries),
		MaxSize:     c.maxSize,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}

func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Cache[V]) evictOldest() {
	oldest := c.lru.Back()
	if oldest == nil {
		return
	}

	c.removeElement(oldest)
	c.evictions++
}

func (c *Cache[V]) removeElement(elem *list.Element) {
	ent := elem.Value.(*entry[V])
	delete(c.entries, ent.key)
	c.lru.Remove(elem)
}

func (c *Cache[V]) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Cleanup()
		case <-c.stop:
			return
		}
	}
}

func sweepIntervalFor(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval < time.Second {
		return time.Second
	}
	if interval > time.Minute {
		return time.Minute
	}

	return interval
}

// BucketKey combines a logical identity with a time bucket of width ttl, so
// derived keys roll over every ttl window regardless of sweep timing.
func BucketKey(id string, ttl time.Duration, now time.Time) string {
	if ttl <= 0 {
		return id
	}

	return fmt.Sprintf("%s:%d", id, now.UnixMilli()/ttl.Milliseconds())
}
