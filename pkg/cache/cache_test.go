package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGetExpire(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Stop()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", "alice")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "alice", v)

	now = now.Add(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry should expire at its deadline")

	c.InvalidatePrefix("")
	assert.Equal(t, 0, c.Len())
}

func TestCache_InvalidatePrefix(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Stop()

	c.Set("profile:1", 1)
	c.Set("profile:2", 2)
	c.Set("party:1", 3)

	c.InvalidatePrefix("profile:")
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("party:1")
	assert.True(t, ok)
}

func TestCache_ZeroTTLDoesNotStore(t *testing.T) {
	c := New[int](0)
	defer c.Stop()

	c.Set("k", 1)
	assert.Equal(t, 0, c.Len())
}

func TestLoader_CachesSuccessOnly(t *testing.T) {
	l := NewLoader[string](time.Minute)
	defer l.Stop()

	calls := 0
	failing := func(context.Context) (string, error) {
		calls++
		return "", errors.New("boom")
	}
	_, err := l.GetOrLoad(context.Background(), "k", failing)
	require.Error(t, err)

	ok := func(context.Context) (string, error) {
		calls++
		return "v", nil
	}
	v, err := l.GetOrLoad(context.Background(), "k", ok)
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	v, err = l.GetOrLoad(context.Background(), "k", ok)
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.Equal(t, 2, calls)

	l.Invalidate("k")
	_, _ = l.GetOrLoad(context.Background(), "k", ok)
	assert.Equal(t, 3, calls)
}

func TestLoader_SharesConcurrentMisses(t *testing.T) {
	l := NewLoader[int](time.Minute)
	defer l.Stop()

	var calls int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := l.GetOrLoad(context.Background(), "k", load)
			assert.NoError(t, err)
			assert.Equal(t, 7, v)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(5))
	v, ok := l.cache.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 7, v)
}
