package countdown

import (
	"time"

	"github.com/mcdev12/skirmish/go/internal/schedule"
)

// Option configures a Countdown.
type Option func(*Countdown)

// WithCancel sets the callback invoked by the first Cancel.
func WithCancel(fn func()) Option {
	return func(c *Countdown) { c.onCancel = fn }
}

// Countdown counts whole seconds down to zero. Each Step either reports the
// current remaining value and decrements it, or completes once at zero.
//
// A Countdown is not safe for concurrent use; the owner serializes Step,
// Cancel and reads, typically by passing its lock to Start as guard.
type Countdown struct {
	remaining  int
	onTick     func(remaining int)
	onComplete func()
	onCancel   func()

	cancelled bool
	finished  bool
	handle    schedule.Handle
}

// New creates a stopped countdown starting at start seconds.
func New(start int, onTick func(remaining int), onComplete func(), opts ...Option) *Countdown {
	if start < 0 {
		start = 0
	}
	c := &Countdown{
		remaining:  start,
		onTick:     onTick,
		onComplete: onComplete,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start steps the countdown once per period on s. guard wraps every step and
// is where the owner takes its lock; nil runs steps unguarded.
func (c *Countdown) Start(s schedule.Scheduler, period time.Duration, guard func(func())) {
	if guard == nil {
		guard = func(fn func()) { fn() }
	}
	c.handle = s.Every(period, func() {
		guard(func() { c.Step() })
	})
}

// Step advances the countdown by one tick and reports whether it is still running.
// Steps after completion or cancellation are no-ops.
func (c *Countdown) Step() bool {
	if c.cancelled || c.finished {
		return false
	}
	if c.remaining > 0 {
		if c.onTick != nil {
			c.onTick(c.remaining)
		}
		c.remaining--
		return true
	}

	c.finished = true
	c.stop()
	if c.onComplete != nil {
		c.onComplete()
	}
	return false
}

// Cancel stops the countdown and invokes the cancel callback. Only the first
// call on a running countdown has any effect.
func (c *Countdown) Cancel() {
	if c.cancelled || c.finished {
		return
	}
	c.cancelled = true
	c.stop()
	if c.onCancel != nil {
		c.onCancel()
	}
}

func (c *Countdown) stop() {
	if c.handle != nil {
		c.handle.Stop()
	}
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int { return c.remaining }

// Running reports whether the countdown has neither completed nor been cancelled.
func (c *Countdown) Running() bool { return !c.cancelled && !c.finished }

// Cancelled reports whether Cancel took effect.
func (c *Countdown) Cancelled() bool { return c.cancelled }
