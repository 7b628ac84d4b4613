package cache

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestCache_SetAndGet(t *testing.T) {
	clk := clock.NewMock()
	c := New[string](5*time.Minute, 0, clk)

	c.Set("chan", "value")
	got, ok := c.Get("chan")
	if !ok {
		t.Fatal("expected cache hit, got miss")
	}
	if got != "value" {
		t.Errorf("got %q, want value", got)
	}
}

func TestCache_Miss(t *testing.T) {
	c := New[int](time.Minute, 0, clock.NewMock())
	if _, ok := c.Get("missing"); ok {
		t.Error("expected cache miss, got hit")
	}
}

func TestCache_Expiry(t *testing.T) {
	clk := clock.NewMock()
	c := New[string](5*time.Minute, 0, clk)
	c.Set("chan", "value")

	clk.Add(5*time.Minute - time.Second)
	if _, ok := c.Get("chan"); !ok {
		t.Fatal("entry should still be fresh just inside the window")
	}

	clk.Add(time.Second)
	if _, ok := c.Get("chan"); ok {
		t.Fatal("entry should expire once the window has elapsed")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be removed lazily, len = %d", c.Len())
	}
}

func TestCache_PeekReturnsStale(t *testing.T) {
	clk := clock.NewMock()
	c := New[string](time.Minute, 0, clk)
	c.Set("chan", "stale")
	clk.Add(time.Hour)

	e, ok := c.Peek("chan")
	if !ok || e.Value != "stale" {
		t.Fatalf("Peek = %+v, %v; want stale entry", e, ok)
	}
	if !e.StoredAt.Equal(clk.Now().Add(-time.Hour)) {
		t.Errorf("StoredAt = %v", e.StoredAt)
	}
	if c.Len() != 1 {
		t.Error("Peek must not evict")
	}
}

func TestCache_SizeCapTrimsOldestInsertion(t *testing.T) {
	c := New[int](time.Hour, 2, clock.NewMock())
	c.Set("a", 1)
	c.Set("b", 2)
	// Reading does not protect an entry.
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("a"); ok {
		t.Error("oldest insertion should be trimmed")
	}
	for _, k := range []string{"b", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should survive", k)
		}
	}

	// Overwriting moves b to the back, so d evicts c.
	c.Set("b", 20)
	c.Set("d", 4)
	if _, ok := c.Get("c"); ok {
		t.Error("c should be trimmed after b was re-inserted")
	}
	if v, _ := c.Get("b"); v != 20 {
		t.Errorf("b = %d, want 20", v)
	}
}

func TestCache_Sweep(t *testing.T) {
	clk := clock.NewMock()
	c := New[int](time.Minute, 0, clk)
	c.Set("old1", 1)
	c.Set("old2", 2)
	clk.Add(2 * time.Minute)
	c.Set("new", 3)

	if removed := c.Sweep(); removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
}
