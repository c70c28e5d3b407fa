package cache

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func TestLRU_BasicOperations(t *testing.T) {
	c := NewLRU[string, int](3)

	if evicted := c.Put("a", 1); len(evicted) != 0 {
		t.Fatalf("unexpected eviction: %v", evicted)
	}
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Fatalf("Get(a) = %d, %v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) found a value")
	}
	if !c.Contains("a") {
		t.Error("Contains(a) = false")
	}
	if !c.Remove("a") || c.Contains("a") {
		t.Error("Remove(a) did not remove")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("hit rate = %v, want 0.5", stats.HitRate)
	}
}

func TestLRU_MinimumCapacity(t *testing.T) {
	c := NewLRU[int, int](0)
	c.Put(1, 1)
	c.Put(2, 2)
	if c.Len() != MinCapacity {
		t.Errorf("Len = %d, want %d", c.Len(), MinCapacity)
	}
}

func TestLRU_Eviction(t *testing.T) {
	c := NewLRU[int, string](3)
	for i := 0; i < 3; i++ {
		c.Put(i, fmt.Sprint(i))
	}

	// touch 0 so 1 becomes the oldest
	c.Get(0)
	evicted := c.Put(3, "3")
	if !reflect.DeepEqual(evicted, []int{1}) {
		t.Errorf("evicted = %v, want [1]", evicted)
	}
	if got := c.Keys(); !reflect.DeepEqual(got, []int{3, 0, 2}) {
		t.Errorf("Keys = %v, want [3 0 2]", got)
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("evictions = %d, want 1", c.Stats().Evictions)
	}
}

func TestLRU_TouchSkipsStats(t *testing.T) {
	c := NewLRU[int, string](3)
	for i := 0; i < 3; i++ {
		c.Put(i, fmt.Sprint(i))
	}

	for i := 0; i < 50; i++ {
		if v, ok := c.Touch(0); !ok || v != "0" {
			t.Fatalf("Touch(0) = %q, %v", v, ok)
		}
	}
	if _, ok := c.Touch(9); ok {
		t.Error("Touch(9) found a value")
	}
	if stats := c.Stats(); stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("hits/misses = %d/%d, want 0/0", stats.Hits, stats.Misses)
	}

	// recency still moves
	if evicted := c.Put(3, "3"); !reflect.DeepEqual(evicted, []int{1}) {
		t.Errorf("evicted = %v, want [1]", evicted)
	}
}

func TestLRU_SequentialTouchesNeverEvictNewest(t *testing.T) {
	const capacity = 3
	c := NewLRU[int, int](capacity)
	for i := 0; i < 20; i++ {
		evicted := c.Put(i, i)
		for _, k := range evicted {
			if k == i {
				t.Fatalf("newest key %d was evicted", i)
			}
		}
		if c.Len() > capacity {
			t.Fatalf("Len = %d after %d puts, want <= %d", c.Len(), i+1, capacity)
		}
		if !c.Contains(i) {
			t.Fatalf("newest key %d missing", i)
		}
	}
}

func TestLRU_Pinning(t *testing.T) {
	c := NewLRU[int, int](2)
	c.Pin(0)
	c.Put(0, 0)
	c.Put(1, 1)
	evicted := c.Put(2, 2)

	if !reflect.DeepEqual(evicted, []int{1}) {
		t.Errorf("evicted = %v, want [1]", evicted)
	}
	if !c.Contains(0) {
		t.Fatal("pinned key evicted")
	}

	// everything except the newest pinned: cache grows past capacity
	c.Pin(2)
	c.Put(3, 3)
	if c.Len() != 3 {
		t.Errorf("Len = %d, want 3 while pinned", c.Len())
	}

	// releasing pins trims back to capacity
	c.Unpin(2)
	evicted = c.Unpin(0)
	if c.Len() != 2 {
		t.Errorf("Len after unpin = %d, want 2 (evicted %v)", c.Len(), evicted)
	}
	if !c.Contains(3) {
		t.Error("most recent key evicted on unpin")
	}
}

func TestLRU_PinCounts(t *testing.T) {
	c := NewLRU[string, int](2)
	c.Pin("x")
	c.Pin("x")
	c.Unpin("x")
	if !c.Pinned("x") {
		t.Error("pin released after one of two unpins")
	}
	c.Unpin("x")
	if c.Pinned("x") {
		t.Error("pin kept after matching unpins")
	}
}

func TestLRU_Resize(t *testing.T) {
	c := NewLRU[int, int](4)
	for i := 0; i < 4; i++ {
		c.Put(i, i)
	}
	evicted := c.Resize(2)
	if !reflect.DeepEqual(evicted, []int{0, 1}) {
		t.Errorf("evicted = %v, want [0 1]", evicted)
	}
	if c.Stats().Capacity != 2 {
		t.Errorf("capacity = %d, want 2", c.Stats().Capacity)
	}
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU[int, int](5)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := (g*200 + i) % 17
				c.Put(k, i)
				c.Get(k)
			}
		}(g)
	}
	wg.Wait()
	if c.Len() > 5 {
		t.Errorf("Len = %d, want <= 5", c.Len())
	}
}
