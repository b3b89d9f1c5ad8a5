package cache

import (
	"testing"
	"time"
)

func newClockedCache(maxSize int, ttl time.Duration) (*LRUCache[int], *time.Time) {
	c := NewLRUCache[int](maxSize, ttl)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestLRUEviction(t *testing.T) {
	c, _ := newClockedCache(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("least recently used entry must be evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("%s evicted", k)
		}
	}
	if c.Size() != 2 {
		t.Fatalf("Size() = %d", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	c, now := newClockedCache(10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	*now = now.Add(30 * time.Second)
	c.Set("b", 20)
	if v, ok := c.Get("b"); !ok || v != 20 {
		t.Fatalf("Get(b) = %d, %v", v, ok)
	}

	*now = now.Add(45 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expired entry returned")
	}
	if n := c.CleanExpired(); n != 0 {
		t.Fatalf("CleanExpired() = %d, want 0", n)
	}

	*now = now.Add(time.Minute)
	if n := c.CleanExpired(); n != 1 || c.Size() != 0 {
		t.Fatalf("CleanExpired() = %d, size %d", n, c.Size())
	}
}

func TestLRUPurgeAndDelete(t *testing.T) {
	c, _ := newClockedCache(10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("deleted entry returned")
	}
	c.Purge()
	if c.Size() != 0 {
		t.Fatalf("Size() after purge = %d", c.Size())
	}
	c.Set("c", 3)
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Fatal("cache unusable after purge")
	}
}

func TestManagerStop(t *testing.T) {
	c, _ := newClockedCache(10, 0)
	c.Set("a", 1)

	m := NewManager()
	m.Register(c)
	if n := m.sweep(); n != 1 {
		t.Fatalf("sweep() = %d, want 1", n)
	}
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}
