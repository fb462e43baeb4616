package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestCache(t *testing.T, size int, ttl time.Duration) (*LRUCache[int], *time.Time) {
	t.Helper()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[int](size, ttl)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestLRUCache_Eviction(t *testing.T) {
	c, _ := newTestCache(t, 2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", 3) // evicts b, the least recently used

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCache_TTL(t *testing.T) {
	c, now := newTestCache(t, 10, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	*now = now.Add(30 * time.Second)
	c.Set("b", 3) // refresh

	*now = now.Add(45 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
	if removed := c.CleanExpired(); removed != 0 {
		t.Errorf("CleanExpired() = %d, want 0 (a already dropped by Get)", removed)
	}
	if v, ok := c.Get("b"); !ok || v != 3 {
		t.Errorf("Get(b) = %d, %v", v, ok)
	}

	*now = now.Add(time.Minute)
	if removed := c.CleanExpired(); removed != 1 {
		t.Errorf("CleanExpired() = %d, want 1", removed)
	}
}

func TestLRUCache_DeleteAndPurge(t *testing.T) {
	c, _ := newTestCache(t, 10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("a should be deleted")
	}

	c.Purge()
	if c.Size() != 0 {
		t.Errorf("Size() after Purge = %d", c.Size())
	}
	c.Set("c", 3)
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Error("cache unusable after Purge")
	}
}

func TestGetOrLoad(t *testing.T) {
	c, _ := newTestCache(t, 10, time.Minute)
	ctx := context.Background()
	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := GetOrLoad[int](ctx, c, "k", load)
		if err != nil || v != 42 {
			t.Fatalf("GetOrLoad = %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}

	_, err := GetOrLoad[int](ctx, c, "bad", func(context.Context) (int, error) { return 0, errors.New("boom") })
	if err == nil {
		t.Fatal("want loader error")
	}
	if _, ok := c.Get("bad"); ok {
		t.Error("failed load should not be cached")
	}
}

func TestManager(t *testing.T) {
	c, now := newTestCache(t, 10, time.Minute)
	c.Set("a", 1)

	m := NewManager()
	m.Register(c)
	m.StartCleanup(time.Hour)
	m.StartCleanup(time.Hour)

	*now = now.Add(2 * time.Minute)
	if got := m.CleanExpired(); got != 1 {
		t.Errorf("CleanExpired() = %d, want 1", got)
	}

	m.Stop()
	m.Stop()

	NewManager().Stop()
}
