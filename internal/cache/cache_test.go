package cache

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(capacity int) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	c := New(capacity)
	c.now = clock.now
	return c, clock
}

func TestGetOrComputeCachesWithinTTL(t *testing.T) {
	c, clock := newTestCache(10)

	calls := 0
	compute := func() (any, error) {
		calls++
		return 42, nil
	}

	v, err := c.GetOrCompute("k", time.Minute, compute)
	if err != nil || v.(int) != 42 {
		t.Fatalf("first call: got %v, %v", v, err)
	}

	clock.advance(30 * time.Second)
	v, err = c.GetOrCompute("k", time.Minute, compute)
	if err != nil || v.(int) != 42 {
		t.Fatalf("second call: got %v, %v", v, err)
	}
	if calls != 1 {
		t.Fatalf("compute ran %d times, want 1", calls)
	}
}

func TestGetOrComputeRecomputesAfterTTL(t *testing.T) {
	c, clock := newTestCache(10)

	calls := 0
	compute := func() (any, error) {
		calls++
		return calls, nil
	}

	if _, err := c.GetOrCompute("k", time.Minute, compute); err != nil {
		t.Fatal(err)
	}
	clock.advance(time.Minute)

	v, err := c.GetOrCompute("k", time.Minute, compute)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 || v.(int) != 2 {
		t.Fatalf("after ttl: calls=%d v=%v, want recompute", calls, v)
	}
}

func TestFailedComputeIsNotStored(t *testing.T) {
	c, _ := newTestCache(10)

	boom := errors.New("gateway down")
	if _, err := c.GetOrCompute("k", time.Minute, func() (any, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("failed compute was stored, len=%d", c.Len())
	}

	// next call retries and succeeds
	v, err := c.GetOrCompute("k", time.Minute, func() (any, error) { return "ok", nil })
	if err != nil || v.(string) != "ok" {
		t.Fatalf("retry: got %v, %v", v, err)
	}
}

func TestEvictsSingleOldestEntryAtCapacity(t *testing.T) {
	c, clock := newTestCache(3)

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("k%d", i)
		if _, err := c.GetOrCompute(key, time.Hour, func() (any, error) { return i, nil }); err != nil {
			t.Fatal(err)
		}
		clock.advance(time.Second)
	}

	if _, err := c.GetOrCompute("k3", time.Hour, func() (any, error) { return 3, nil }); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 3 {
		t.Fatalf("len=%d, want 3 after eviction", c.Len())
	}

	// k0 (oldest) must be gone: a fresh read recomputes it.
	recomputed := false
	if _, err := c.GetOrCompute("k0", time.Hour, func() (any, error) { recomputed = true; return 0, nil }); err != nil {
		t.Fatal(err)
	}
	if !recomputed {
		t.Fatal("oldest entry k0 still cached, expected eviction")
	}

	// k1..k3 survive.
	for _, key := range []string{"k1", "k2", "k3"} {
		hit := true
		if _, err := c.GetOrCompute(key, time.Hour, func() (any, error) { hit = false; return nil, nil }); err != nil {
			t.Fatal(err)
		}
		if !hit {
			t.Fatalf("entry %s was evicted, expected only the oldest to go", key)
		}
	}
}

func TestDefaultCapacityEvictsAtHundredAndOne(t *testing.T) {
	c, clock := newTestCache(0) // falls back to DefaultCapacity

	for i := 0; i <= DefaultCapacity; i++ {
		key := fmt.Sprintf("k%d", i)
		if _, err := c.GetOrCompute(key, 24*time.Hour, func() (any, error) { return i, nil }); err != nil {
			t.Fatal(err)
		}
		clock.advance(time.Millisecond)
	}

	if c.Len() != DefaultCapacity {
		t.Fatalf("len=%d, want %d", c.Len(), DefaultCapacity)
	}
	recomputed := false
	if _, err := c.GetOrCompute("k0", 24*time.Hour, func() (any, error) { recomputed = true; return 0, nil }); err != nil {
		t.Fatal(err)
	}
	if !recomputed {
		t.Fatal("expected the oldest key k0 to be evicted")
	}
}

func TestClearDropsEverything(t *testing.T) {
	c, _ := newTestCache(10)

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("k%d", i)
		if _, err := c.GetOrCompute(key, time.Hour, func() (any, error) { return i, nil }); err != nil {
			t.Fatal(err)
		}
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("len=%d after Clear, want 0", c.Len())
	}
}

func TestTypedGetOrCompute(t *testing.T) {
	c, _ := newTestCache(10)

	calls := 0
	fetch := func() ([]string, error) {
		calls++
		return []string{"a", "b"}, nil
	}

	v, err := GetOrCompute(c, "list", time.Minute, fetch)
	if err != nil || len(v) != 2 {
		t.Fatalf("got %v, %v", v, err)
	}
	v, err = GetOrCompute(c, "list", time.Minute, fetch)
	if err != nil || len(v) != 2 || calls != 1 {
		t.Fatalf("cached call: v=%v err=%v calls=%d", v, err, calls)
	}
}
