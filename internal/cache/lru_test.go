package cache

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache[T any](size int, ttl time.Duration, opts ...Option[T]) (*LRUCache[T], *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[T](size, ttl, opts...)
	c.now = clock.Now
	return c, clock
}

func TestLRUCache_Eviction(t *testing.T) {
	var evicted []string
	c, _ := newTestCache[string](3, time.Hour, WithOnEvict(func(key string, _ string) {
		evicted = append(evicted, key)
	}))

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")
	c.Get("a") // a becomes most recent
	c.Set("d", "4")

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted as least recently used")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should still exist", k)
		}
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Errorf("evicted = %v, want [b]", evicted)
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	c, clock := newTestCache[int](10, time.Minute)
	c.Set("x", 1)
	c.Set("y", 2)

	clock.Advance(30 * time.Second)
	c.Set("y", 3) // rewrite refreshes y
	clock.Advance(45 * time.Second)

	if _, ok := c.Get("x"); ok {
		t.Error("x should have expired")
	}
	if v, ok := c.Get("y"); !ok || v != 3 {
		t.Errorf("y = %v, %v; want 3, true", v, ok)
	}
	clock.Advance(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestLRUCache_Sliding(t *testing.T) {
	c, clock := newTestCache[int](10, time.Minute, WithSliding[int]())
	c.Set("s", 1)
	for i := 0; i < 5; i++ {
		clock.Advance(50 * time.Second)
		if _, ok := c.Get("s"); !ok {
			t.Fatalf("sliding entry expired after read %d", i)
		}
	}
	clock.Advance(61 * time.Second)
	if _, ok := c.Get("s"); ok {
		t.Error("idle sliding entry should expire")
	}
}

func TestLRUCache_GetOrCreate(t *testing.T) {
	c, _ := newTestCache[*int](10, time.Minute)
	created := 0
	mk := func() *int { created++; v := created; return &v }

	first := c.GetOrCreate("k", mk)
	second := c.GetOrCreate("k", mk)
	if first != second || created != 1 {
		t.Errorf("GetOrCreate created %d values, want 1", created)
	}
	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Size != 1 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestLRUCache_GetOrCreateConcurrent(t *testing.T) {
	c := NewLRUCache[*sync.Mutex](100, time.Minute)
	results := make([]*sync.Mutex, 32)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.GetOrCreate("shared", func() *sync.Mutex { return new(sync.Mutex) })
		}()
	}
	wg.Wait()
	for i := range results {
		if results[i] != results[0] {
			t.Fatalf("goroutine %d got a different value", i)
		}
	}
}

func TestLRUCache_DeletePrefixAndRange(t *testing.T) {
	c, _ := newTestCache[string](10, time.Minute)
	c.Set("sess1:cats", "a")
	c.Set("sess1:stats", "b")
	c.Set("sess2:cats", "c")

	if n := c.DeletePrefix("sess1:"); n != 2 {
		t.Errorf("DeletePrefix removed %d, want 2", n)
	}
	var keys []string
	c.Range(func(k, _ string) bool {
		keys = append(keys, k)
		c.Delete(k) // callbacks may re-enter the cache
		return true
	})
	if len(keys) != 1 || keys[0] != "sess2:cats" {
		t.Errorf("Range keys = %v", keys)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d after deleting in Range", c.Size())
	}
}

func TestManager_SweepAndStop(t *testing.T) {
	c, clock := newTestCache[int](10, time.Second)
	c.Set("a", 1)
	m := NewManager()
	m.Register("test", c)
	m.StartCleanup(time.Hour)

	clock.Advance(2 * time.Second)
	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	m.Stop()
	m.Stop()
}
