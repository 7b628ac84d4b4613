package ratelimit

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestWindow_RejectsOverCeiling(t *testing.T) {
	clk := clock.NewMock()
	w := New(3, time.Minute, clk)

	for i := 0; i < 3; i++ {
		if !w.Allow("client") {
			t.Fatalf("request %d should be admitted", i+1)
		}
		clk.Add(time.Second)
	}
	if w.Allow("client") {
		t.Fatal("4th request inside the window should be rejected")
	}
	if w.Remaining("client") != 0 {
		t.Errorf("remaining = %d, want 0", w.Remaining("client"))
	}
}

func TestWindow_RejectionDoesNotExtendWindow(t *testing.T) {
	clk := clock.NewMock()
	w := New(2, time.Minute, clk)

	w.Allow("c") // t=0
	clk.Add(10 * time.Second)
	w.Allow("c") // t=10s
	for i := 0; i < 5; i++ {
		clk.Add(5 * time.Second)
		if w.Allow("c") {
			t.Fatalf("rejected retry %d should not be admitted", i)
		}
	}

	// t=60s: the first request leaves the window.
	clk.Add(60*time.Second - 35*time.Second)
	if !w.Allow("c") {
		t.Fatal("request should be admitted once the oldest leaves the window")
	}
	if w.Allow("c") {
		t.Fatal("window is full again")
	}
}

func TestWindow_KeysAreIndependent(t *testing.T) {
	w := New(1, time.Minute, clock.NewMock())
	if !w.Allow("a") || !w.Allow("b") {
		t.Fatal("each key has its own budget")
	}
	if w.Allow("a") {
		t.Fatal("a is exhausted")
	}
}

func TestWindow_Unlimited(t *testing.T) {
	w := New(0, time.Minute, clock.NewMock())
	for i := 0; i < 100; i++ {
		if !w.Allow("x") {
			t.Fatal("zero limit admits everything")
		}
	}
}

func TestWindow_Sweep(t *testing.T) {
	clk := clock.NewMock()
	w := New(5, time.Minute, clk)
	w.Allow("idle")
	clk.Add(2 * time.Minute)
	w.Allow("active")

	if removed := w.Sweep(); removed != 1 {
		t.Errorf("Sweep removed %d keys, want 1", removed)
	}
	if w.Remaining("active") != 4 {
		t.Errorf("active remaining = %d, want 4", w.Remaining("active"))
	}
}
