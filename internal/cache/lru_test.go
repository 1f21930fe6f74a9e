package cache

import (
	"fmt"
	"testing"
	"time"
)

func newTestCache(maxSize int, ttl time.Duration) (*LRU[int], *time.Time) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := &now
	return New[int](maxSize, ttl, func() time.Time { return *clock }), clock
}

func TestGetSetDelete(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get() on empty cache reported a hit")
	}

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v; want 1, true", v, ok)
	}

	c.Set("a", 2)
	if v, _ := c.Get("a"); v != 2 {
		t.Errorf("Get(a) after overwrite = %v, want 2", v)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1 after overwrite", c.Size())
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("Get(a) after Delete reported a hit")
	}
}

func TestEntriesExpire(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)

	c.Set("a", 1)
	*clock = clock.Add(59 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Error("entry expired before its TTL")
	}

	*clock = clock.Add(2 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("entry survived past its TTL")
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0 after expiry", c.Size())
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(3, time.Hour)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	c.Get("a") // refresh a, making b the oldest
	c.Set("d", 4)

	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry b was not evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("entry %s was evicted, want it kept", key)
		}
	}
}

func TestDeletePrefix(t *testing.T) {
	c, _ := newTestCache(10, time.Hour)

	c.Set("alice/forecast/2025-03", 1)
	c.Set("alice/projection/2025-03", 2)
	c.Set("bob/forecast/2025-03", 3)

	if n := c.DeletePrefix("alice/"); n != 2 {
		t.Errorf("DeletePrefix(alice/) removed %d entries, want 2", n)
	}
	if _, ok := c.Get("alice/forecast/2025-03"); ok {
		t.Error("alice's entry survived prefix invalidation")
	}
	if _, ok := c.Get("bob/forecast/2025-03"); !ok {
		t.Error("bob's entry was removed by alice's invalidation")
	}
}

func TestCapacityIsRespectedUnderChurn(t *testing.T) {
	c, _ := newTestCache(5, time.Hour)

	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
	}
	if c.Size() != 5 {
		t.Errorf("Size() = %d, want capacity 5", c.Size())
	}
}
