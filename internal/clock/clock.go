package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

/*
LEARNING: INJECTED TIME

Reconnect delays and edit debouncing are timers. Components take a Clock
instead of calling the time package, so tests swap in Fake() and move
time by hand. Both implementations sit on clockwork.
*/

// Clock is the slice of the time package the sync client needs
type Clock interface {
	Now() time.Time

	// AfterFunc calls f on its own goroutine once d has elapsed
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call
type Timer struct {
	stop func() bool
}

// Stop cancels the pending call. It reports false if the call already
// ran or was stopped before. A nil Timer is never armed.
func (t *Timer) Stop() bool {
	if t == nil || t.stop == nil {
		return false
	}
	return t.stop()
}

// Real returns a Clock backed by the system clock
func Real() Clock { return realClock{clockwork.NewRealClock()} }

type realClock struct {
	clk clockwork.Clock
}

func (c realClock) Now() time.Time { return c.clk.Now() }

func (c realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := c.clk.AfterFunc(d, f)
	return &Timer{stop: t.Stop}
}
