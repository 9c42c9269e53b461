// Package countdown provides cancellable timers for phase-driven state machines.
package countdown

import (
	"sync"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop cancels the callback and reports whether it was still pending.
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler schedules on the runtime timer heap.
type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Countdown counts whole ticks down to zero. onTick receives the remaining
// count after every tick except the last; onExpire runs when zero is
// reached. Neither callback runs after Stop.
type Countdown struct {
	sched    Scheduler
	tick     time.Duration
	onTick   func(remaining int)
	onExpire func()

	mu        sync.Mutex
	remaining int
	timer     Timer
	stopped   bool
}

// Start arms a countdown of n ticks. n <= 0 expires on the next scheduler turn.
func Start(sched Scheduler, n int, tick time.Duration, onTick func(int), onExpire func()) *Countdown {
	if n < 0 {
		n = 0
	}
	c := &Countdown{
		sched:     sched,
		tick:      tick,
		onTick:    onTick,
		onExpire:  onExpire,
		remaining: n,
	}
	c.mu.Lock()
	if n == 0 {
		c.timer = sched.AfterFunc(0, c.fire)
	} else {
		c.timer = sched.AfterFunc(tick, c.fire)
	}
	c.mu.Unlock()
	return c
}

// Stop cancels the countdown. It is safe to call more than once.
func (c *Countdown) Stop() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	c.stopped = true
	if c.timer != nil {
		return c.timer.Stop()
	}
	return false
}

// Remaining returns the ticks left.
func (c *Countdown) Remaining() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) fire() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining > 0 {
		remaining := c.remaining
		c.timer = c.sched.AfterFunc(c.tick, c.fire)
		c.mu.Unlock()
		if c.onTick != nil {
			c.onTick(remaining)
		}
		return
	}
	c.stopped = true
	c.mu.Unlock()
	if c.onExpire != nil {
		c.onExpire()
	}
}
