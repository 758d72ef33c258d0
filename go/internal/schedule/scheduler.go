package schedule

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Handle cancels a scheduled callback. Stop never blocks and may be called
// from inside the callback it cancels.
type Handle interface {
	Stop()
}

// Scheduler runs callbacks at a fixed rate or once after a delay.
type Scheduler interface {
	Every(period time.Duration, fn func()) Handle
	After(delay time.Duration, fn func()) Handle
}

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
	NewTicker(d time.Duration) clockwork.Ticker
}

// ClockScheduler runs each scheduled callback on its own goroutine driven by a Clock.
// Callers serialize state access inside fn themselves.
type ClockScheduler struct {
	clock Clock

	mu     sync.Mutex
	nextID uint64
	active map[uint64]*handle
	closed bool
}

// NewClockScheduler creates a scheduler on the given clock.
func NewClockScheduler(clock Clock) *ClockScheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClockScheduler{
		clock:  clock,
		active: make(map[uint64]*handle),
	}
}

type handle struct {
	stopCh chan struct{}
	once   sync.Once
}

func newHandle() *handle {
	return &handle{stopCh: make(chan struct{})}
}

func (h *handle) Stop() {
	h.once.Do(func() { close(h.stopCh) })
}

// Every calls fn once per period until the handle is stopped.
func (s *ClockScheduler) Every(period time.Duration, fn func()) Handle {
	h := newHandle()
	id, ok := s.track(h)
	if !ok {
		h.Stop()
		return h
	}

	ticker := s.clock.NewTicker(period)
	go func() {
		defer ticker.Stop()
		defer s.removeHandle(id)
		for {
			select {
			case <-ticker.Chan():
				// A stop that raced the tick wins.
				select {
				case <-h.stopCh:
					return
				default:
				}
				fn()
			case <-h.stopCh:
				return
			}
		}
	}()

	log.Debug().Uint64("handle_id", id).Dur("period", period).Msg("scheduled repeating callback")
	return h
}

// After calls fn once after delay unless the handle is stopped first.
func (s *ClockScheduler) After(delay time.Duration, fn func()) Handle {
	h := newHandle()
	id, ok := s.track(h)
	if !ok {
		h.Stop()
		return h
	}

	timer := s.clock.NewTimer(delay)
	go func() {
		defer s.removeHandle(id)
		select {
		case <-timer.Chan():
			select {
			case <-h.stopCh:
				return
			default:
			}
			fn()
		case <-h.stopCh:
			stopAndDrainTimer(timer)
		}
	}()

	log.Debug().Uint64("handle_id", id).Dur("delay", delay).Msg("scheduled one-shot callback")
	return h
}

// Close stops every outstanding callback. Later registrations are stopped immediately.
func (s *ClockScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	handles := make([]*handle, 0, len(s.active))
	for _, h := range s.active {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
	log.Debug().Int("stopped", len(handles)).Msg("scheduler closed")
}

// Active returns the number of callbacks that have not finished or been stopped.
func (s *ClockScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *ClockScheduler) track(h *handle) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false
	}
	s.nextID++
	s.active[s.nextID] = h
	return s.nextID, true
}

// removeHandle removes a handle from the active map (called when its goroutine exits)
func (s *ClockScheduler) removeHandle(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

// stopAndDrainTimer stops a timer and drains its channel so nothing stays buffered.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
