package cache

import (
	"testing"
	"time"
)

func TestLRUCacheGetSet(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %v, %v", v, ok)
	}
	// "a" was used last, so "b" is evicted.
	c.Set("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if c.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", c.Size())
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected a to be deleted")
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c := NewLRUCache[string](10, 10*time.Millisecond)
	c.Set("k", "v")
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected entry to expire")
	}

	c.Set("x", "1")
	c.Set("y", "2")
	time.Sleep(20 * time.Millisecond)
	if n := c.CleanExpired(); n != 2 {
		t.Fatalf("CleanExpired() = %d, want 2", n)
	}
}

func TestLRUCachePurgeInvalidatesInFlightValues(t *testing.T) {
	c := NewLRUCache[string](10, time.Minute)
	c.Set("history:7", "old")

	gen := c.Generation()
	c.Purge()

	if c.Size() != 0 {
		t.Fatalf("Size() after purge = %d", c.Size())
	}
	if c.SetIfCurrent("history:7", "stale", gen) {
		t.Fatal("value computed before purge must not be stored")
	}
	if _, ok := c.Get("history:7"); ok {
		t.Fatal("stale value visible after purge")
	}
	if !c.SetIfCurrent("history:7", "fresh", c.Generation()) {
		t.Fatal("current generation should be stored")
	}
	if v, _ := c.Get("history:7"); v != "fresh" {
		t.Fatalf("Get() = %q, want fresh", v)
	}
}

func TestManagerStop(t *testing.T) {
	c := NewLRUCache[int](10, time.Millisecond)
	c.Set("a", 1)

	m := NewManager()
	m.Register(c)
	m.StartCleanup(5 * time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for c.Size() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()
	m.Stop()

	if c.Size() != 0 {
		t.Fatal("expected cleanup to remove expired entry")
	}
}

func TestManagerStopWithoutStart(t *testing.T) {
	m := NewManager()
	m.Stop()
}
