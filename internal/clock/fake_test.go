package clock

import (
	"sort"
	"sync"
	"testing"
	"time"
)

func TestFakeAdvanceRunsOnlyDueCallbacks(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	var mu sync.Mutex
	var fired []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			fired = append(fired, name)
			mu.Unlock()
		}
	}

	c.AfterFunc(2*time.Second, record("b"))
	c.AfterFunc(time.Second, record("a"))
	c.AfterFunc(5*time.Second, record("c"))

	c.Advance(2 * time.Second)

	mu.Lock()
	got := append([]string(nil), fired...)
	mu.Unlock()
	sort.Strings(got)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("fired = %v, want [a b]", got)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", c.Pending())
	}

	c.Advance(3 * time.Second)
	if len(fired) != 3 {
		t.Fatalf("fired = %v, want three callbacks", fired)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestFakeNowMovesWithAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)

	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("Now() = %s", got)
	}
}

func TestFakeStopPreventsCallback(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	called := false
	timer := c.AfterFunc(time.Second, func() { called = true })

	if !timer.Stop() {
		t.Fatal("Stop() on an armed timer returned false")
	}
	if timer.Stop() {
		t.Error("second Stop() returned true")
	}

	c.Advance(time.Minute)
	if called {
		t.Error("stopped timer fired")
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestFakeCallbackCanArmNewTimer(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	count := 0
	var arm func()
	arm = func() {
		count++
		if count < 3 {
			c.AfterFunc(time.Second, arm)
		}
	}
	c.AfterFunc(time.Second, arm)

	for i := 0; i < 5; i++ {
		c.Advance(time.Second)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	c := Fake(time.Unix(0, 0))

	go c.AfterFunc(time.Second, func() {})
	c.WaitForTimers(1)

	if c.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", c.Pending())
	}
}

func TestNilTimerStop(t *testing.T) {
	var timer *Timer
	if timer.Stop() {
		t.Error("nil timer reported a stop")
	}
}
