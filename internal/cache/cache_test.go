package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestCache(ttl time.Duration) (*TTLCache[int, string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[int, string](ttl)
	c.now = clock.Now
	return c, clock
}

func TestTTLCache_GetSet(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	defer c.Stop()

	_, ok := c.Get(42)
	assert.False(t, ok)

	c.Set(42, "survey")
	v, ok := c.Get(42)
	assert.True(t, ok)
	assert.Equal(t, "survey", v)

	c.Delete(42)
	_, ok = c.Get(42)
	assert.False(t, ok)
}

func TestTTLCache_SetIfUnchanged(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	defer c.Stop()

	epoch := c.Epoch()
	assert.True(t, c.SetIfUnchanged(1, "open", epoch))
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "open", v)

	// load started, then the key was invalidated
	epoch = c.Epoch()
	c.Delete(1)
	assert.False(t, c.SetIfUnchanged(1, "stale", epoch))
	_, ok = c.Get(1)
	assert.False(t, ok)

	epoch = c.Epoch()
	c.Clear()
	assert.False(t, c.SetIfUnchanged(2, "stale", epoch))

	assert.True(t, c.SetIfUnchanged(2, "fresh", c.Epoch()))
	v, _ = c.Get(2)
	assert.Equal(t, "fresh", v)

	disabled, _ := newTestCache(0)
	assert.False(t, disabled.SetIfUnchanged(1, "x", disabled.Epoch()))
}

func TestTTLCache_Expiry(t *testing.T) {
	c, clock := newTestCache(10 * time.Second)
	defer c.Stop()

	c.Set(1, "a")
	clock.Advance(5 * time.Second)
	_, ok := c.Get(1)
	assert.True(t, ok)

	clock.Advance(6 * time.Second)
	_, ok = c.Get(1)
	assert.False(t, ok)

	assert.Equal(t, 1, c.Len())
	c.purgeExpired()
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_Disabled(t *testing.T) {
	c := New[int, string](0)
	defer c.Stop()

	c.Set(1, "a")
	_, ok := c.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_ClearAndStopTwice(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Set(1, "a")
	c.Set(2, "b")
	c.Clear()
	assert.Equal(t, 0, c.Len())

	c.Stop()
	assert.NotPanics(t, c.Stop)
}
