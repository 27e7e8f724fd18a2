package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is an in-memory map whose entries expire after a fixed TTL.
// A zero TTL disables caching: Get always misses and Set is a no-op.
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	epoch   uint64
	ttl     time.Duration
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

// New creates a cache and starts its janitor when ttl > 0
func New[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	c := &TTLCache[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if ttl > 0 {
		go c.cleanup(cleanupInterval(ttl))
	}
	return c
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl < time.Minute {
		return ttl
	}
	return time.Minute
}

// Get returns the cached value for key
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	if c.ttl <= 0 {
		return zero, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		return zero, false
	}
	return e.value, true
}

// Set stores value under key
func (c *TTLCache[K, V]) Set(key K, value V) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Epoch returns a token for SetIfUnchanged. Take it before loading the
// value from the backing store.
func (c *TTLCache[K, V]) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.epoch
}

// SetIfUnchanged stores value only if nothing was deleted since epoch was
// taken, so a value loaded before an invalidation is never cached.
func (c *TTLCache[K, V]) SetIfUnchanged(key K, value V, epoch uint64) bool {
	if c.ttl <= 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return false
	}
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	return true
}

// Delete removes key
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	c.epoch++
}

// Clear removes all entries
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]entry[V])
	c.epoch++
}

// Len returns the number of stored entries, expired ones included
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

func (c *TTLCache[K, V]) purgeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *TTLCache[K, V]) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.purgeExpired()
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the janitor goroutine. Safe to call more than once.
func (c *TTLCache[K, V]) Stop() {
	c.once.Do(func() { close(c.stopCh) })
}
