package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/Travbz/doc-smith/internal/domain"
)

type lruEntry struct {
	key    string
	value  string
	stored time.Time
}

// stampedCache is implemented by inner caches that know when an entry was
// written, so the memory layer can expire it at the same moment.
type stampedCache interface {
	getStamped(ctx context.Context, key string) (string, time.Time, bool)
}

// LRU is an in-memory layer in front of another cache. Hits are served
// from memory; misses fall through to the inner cache and are remembered.
// Entries older than ttl are dropped and looked up again in the inner cache.
type LRU struct {
	inner   domain.Cache
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // most recently used at back
}

var _ domain.Cache = (*LRU)(nil)

// NewLRU wraps inner with an LRU of maxSize entries expiring after ttl
// (zero never expires). If maxSize <= 0, inner is returned directly.
func NewLRU(inner domain.Cache, maxSize int, ttl time.Duration) domain.Cache {
	if maxSize <= 0 {
		return inner
	}
	return &LRU{
		inner:   inner,
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		items:   make(map[string]*list.Element, maxSize),
		order:   list.New(),
	}
}

// Get implements domain.Cache.
func (c *LRU) Get(ctx context.Context, key string) (string, bool) {
	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry)
		if !c.expired(entry.stored) {
			c.order.MoveToBack(elem)
			v := entry.value
			c.mu.Unlock()
			return v, true
		}
		c.order.Remove(elem)
		delete(c.items, key)
	}
	c.mu.Unlock()

	v, stored, ok := c.innerGet(ctx, key)
	if !ok {
		return "", false
	}
	c.mu.Lock()
	c.put(key, v, stored)
	c.mu.Unlock()
	return v, true
}

// Set implements domain.Cache.
func (c *LRU) Set(ctx context.Context, key, value string) {
	c.mu.Lock()
	c.put(key, value, c.now())
	c.mu.Unlock()
	c.inner.Set(ctx, key, value)
}

// Len returns the number of entries held in memory.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRU) innerGet(ctx context.Context, key string) (string, time.Time, bool) {
	if sc, ok := c.inner.(stampedCache); ok {
		return sc.getStamped(ctx, key)
	}
	v, ok := c.inner.Get(ctx, key)
	return v, c.now(), ok
}

func (c *LRU) expired(stored time.Time) bool {
	return c.ttl > 0 && c.now().Sub(stored) > c.ttl
}

// put adds or refreshes key. Caller holds mu.
func (c *LRU) put(key, value string, stored time.Time) {
	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry)
		entry.value = value
		entry.stored = stored
		c.order.MoveToBack(elem)
		return
	}
	for c.order.Len() >= c.maxSize {
		front := c.order.Front()
		c.order.Remove(front)
		delete(c.items, front.Value.(*lruEntry).key)
	}
	c.items[key] = c.order.PushBack(&lruEntry{key: key, value: value, stored: stored})
}
