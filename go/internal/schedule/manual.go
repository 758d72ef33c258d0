package schedule

import (
	"sync"
	"time"
)

// Manual is a Scheduler driven by explicit Advance calls. Callbacks run
// synchronously on the caller's goroutine in due-time order; entries due at the
// same instant run in registration order.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	entries []*manualEntry
}

type manualEntry struct {
	m       *Manual
	seq     uint64
	due     time.Duration
	period  time.Duration
	fn      func()
	stopped bool
}

func (e *manualEntry) Stop() {
	e.m.mu.Lock()
	defer e.m.mu.Unlock()
	e.stopped = true
}

// NewManual creates a manual scheduler at elapsed time zero.
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Every(period time.Duration, fn func()) Handle {
	return m.add(period, period, fn)
}

func (m *Manual) After(delay time.Duration, fn func()) Handle {
	return m.add(delay, 0, fn)
}

func (m *Manual) add(delay, period time.Duration, fn func()) *manualEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	e := &manualEntry{m: m, seq: m.seq, due: m.now + delay, period: period, fn: fn}
	m.entries = append(m.entries, e)
	return e
}

// Advance moves time forward by d, firing everything that comes due on the way.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		e := m.popDue(target)
		if e == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = e.due
		if e.period > 0 {
			e.due += e.period
			m.entries = append(m.entries, e)
		}
		m.mu.Unlock()

		e.fn()
	}
}

// popDue removes and returns the earliest live entry due at or before target.
// Stopped entries are dropped along the way.
func (m *Manual) popDue(target time.Duration) *manualEntry {
	best := -1
	live := m.entries[:0]
	for _, e := range m.entries {
		if e.stopped {
			continue
		}
		live = append(live, e)
	}
	m.entries = live

	for i, e := range m.entries {
		if e.due > target {
			continue
		}
		if best < 0 || e.due < m.entries[best].due || (e.due == m.entries[best].due && e.seq < m.entries[best].seq) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	e := m.entries[best]
	m.entries = append(m.entries[:best], m.entries[best+1:]...)
	return e
}

// Elapsed returns the time advanced so far.
func (m *Manual) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of callbacks still scheduled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if !e.stopped {
			n++
		}
	}
	return n
}
