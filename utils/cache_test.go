package utils

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClockedCache() (*MemoryCache, *stepClock) {
	clock := &stepClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := NewMemoryCache()
	m.now = clock.Now
	return m, clock
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	m, clock := newClockedCache()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	got, ok := m.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", string(got))

	clock.Advance(2 * time.Minute)
	_, ok = m.Get(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "forever-ish", []byte("v"), 0))
	clock.Advance(DefaultCacheTTL - time.Second)
	_, ok = m.Get(ctx, "forever-ish")
	assert.True(t, ok)
}

func TestMemoryCacheSetNXAndGetDel(t *testing.T) {
	ctx := context.Background()
	m, clock := newClockedCache()

	ok, err := m.SetNX(ctx, "lock", []byte("a"), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.SetNX(ctx, "lock", []byte("b"), time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(2 * time.Second)
	ok, err = m.SetNX(ctx, "lock", []byte("c"), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	v, ok := m.GetDel(ctx, "lock")
	require.True(t, ok)
	assert.Equal(t, "c", string(v))
	_, ok = m.GetDel(ctx, "lock")
	assert.False(t, ok)
}

func TestMemoryCacheIncrKeepsExpiry(t *testing.T) {
	ctx := context.Background()
	m, clock := newClockedCache()

	n, err := m.Incr(ctx, "hits")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	require.NoError(t, m.Expire(ctx, "hits", time.Minute))

	clock.Advance(30 * time.Second)
	n, err = m.Incr(ctx, "hits")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	clock.Advance(31 * time.Second)
	n, err = m.Incr(ctx, "hits")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, m.Set(ctx, "word", []byte("abc"), time.Minute))
	_, err = m.Incr(ctx, "word")
	assert.Error(t, err)
}

func TestMemoryCacheDeletePrefix(t *testing.T) {
	ctx := context.Background()
	m, _ := newClockedCache()
	for _, k := range []string{"perm:1", "perm:2", "article:slug:x"} {
		require.NoError(t, m.Set(ctx, k, []byte("1"), time.Minute))
	}

	require.NoError(t, m.DeletePrefix(ctx, "perm:"))
	_, ok := m.Get(ctx, "perm:1")
	assert.False(t, ok)
	_, ok = m.Get(ctx, "article:slug:x")
	assert.True(t, ok)

	require.NoError(t, m.Delete(ctx, "article:slug:x", "missing"))
	_, ok = m.Get(ctx, "article:slug:x")
	assert.False(t, ok)
}

func TestCacheJSONHelpers(t *testing.T) {
	ctx := context.Background()
	m, _ := newClockedCache()
	type payload struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}

	CacheSetJSON(ctx, m, "p", payload{Name: "x", N: 3}, time.Minute)
	var got payload
	require.True(t, CacheGetJSON(ctx, m, "p", &got))
	assert.Equal(t, payload{Name: "x", N: 3}, got)

	require.NoError(t, m.Set(ctx, "bad", []byte("{"), time.Minute))
	assert.False(t, CacheGetJSON(ctx, m, "bad", &got))
	assert.False(t, CacheGetJSON(ctx, m, "absent", &got))
}

func TestNewCacheFallsBackToMemory(t *testing.T) {
	_, ok := NewCache(nil).(*MemoryCache)
	assert.True(t, ok)
}
