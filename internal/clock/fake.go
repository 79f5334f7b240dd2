package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// FakeClock only moves when Advance is called. clockwork fires due
// callbacks on their own goroutines; Advance waits for each one it made
// due, so callers see their effects once it returns. Callbacks run one at
// a time.
type FakeClock struct {
	fake *clockwork.FakeClock

	mu    sync.Mutex
	armed map[*fakeTimer]struct{}

	serial sync.Mutex
}

type fakeTimer struct {
	deadline time.Time
	done     chan struct{}
	once     sync.Once
}

func (t *fakeTimer) finish() { t.once.Do(func() { close(t.done) }) }

func Fake(start time.Time) *FakeClock {
	return &FakeClock{
		fake:  clockwork.NewFakeClockAt(start),
		armed: make(map[*fakeTimer]struct{}),
	}
}

func (c *FakeClock) Now() time.Time { return c.fake.Now() }

func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	ft := &fakeTimer{deadline: c.fake.Now().Add(d), done: make(chan struct{})}
	c.track(ft)

	t := c.fake.AfterFunc(d, func() {
		c.untrack(ft)
		defer ft.finish()

		c.serial.Lock()
		defer c.serial.Unlock()
		f()
	})

	return &Timer{stop: func() bool {
		if !t.Stop() {
			return false
		}
		c.untrack(ft)
		ft.finish()
		return true
	}}
}

// Advance moves time forward and returns once every callback that became
// due has run. Do not call Advance from inside a callback.
func (c *FakeClock) Advance(d time.Duration) {
	target := c.fake.Now().Add(d)

	c.mu.Lock()
	var due []*fakeTimer
	for ft := range c.armed {
		if !ft.deadline.After(target) {
			due = append(due, ft)
		}
	}
	c.mu.Unlock()

	c.fake.Advance(d)
	for _, ft := range due {
		<-ft.done
	}
}

// Pending returns the number of armed, not yet fired timers
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.armed)
}

// WaitForTimers blocks until exactly n timers are armed. It closes the
// race between a goroutine arming a timer and the test advancing time.
func (c *FakeClock) WaitForTimers(n int) {
	c.fake.BlockUntil(n)
}

func (c *FakeClock) track(ft *fakeTimer) {
	c.mu.Lock()
	c.armed[ft] = struct{}{}
	c.mu.Unlock()
}

func (c *FakeClock) untrack(ft *fakeTimer) {
	c.mu.Lock()
	delete(c.armed, ft)
	c.mu.Unlock()
}
