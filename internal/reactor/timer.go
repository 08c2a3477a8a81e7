package reactor

import "time"

// Clock supplies monotonic time in microseconds. The daemon uses the
// wall clock's monotonic reading; tests substitute a manual clock.
type Clock interface {
	Micros() int64
}

// SystemClock reads the process monotonic clock.
type SystemClock struct {
	origin time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{origin: time.Now()}
}

func (c *SystemClock) Micros() int64 {
	return time.Since(c.origin).Microseconds()
}

// Timer is a scheduled callback handle. Returned by the scheduler and
// owned by the caller; the only valid operation on it is Cancel via the
// scheduler.
type Timer struct {
	deadline int64
	interval int64
	cb       func() bool
	canceled bool
}

// Scheduler dispatches one-shot and periodic timers on a single thread.
// Dispatch runs due callbacks to completion in registration order; after
// Cancel returns, the callback is guaranteed not to fire again.
type Scheduler struct {
	clock  Clock
	timers []*Timer
}

func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// AddPeriodic schedules cb every interval. The first firing happens on
// the next Dispatch call, so a freshly armed retry timer does not wait a
// full period. The callback returning false cancels the timer.
func (s *Scheduler) AddPeriodic(interval time.Duration, cb func() bool) *Timer {
	t := &Timer{
		deadline: s.clock.Micros(),
		interval: interval.Microseconds(),
		cb:       cb,
	}
	s.timers = append(s.timers, t)
	return t
}

// AddOneShot schedules cb once after delay.
func (s *Scheduler) AddOneShot(delay time.Duration, cb func()) *Timer {
	t := &Timer{
		deadline: s.clock.Micros() + delay.Microseconds(),
		cb: func() bool {
			cb()
			return false
		},
	}
	s.timers = append(s.timers, t)
	return t
}

// Cancel deactivates t. Safe to call on a nil or already-cancelled
// timer; once it returns, t's callback will not run.
func (s *Scheduler) Cancel(t *Timer) {
	if t == nil {
		return
	}
	t.canceled = true
}

// Dispatch fires every timer whose deadline has passed. Expired one-shot
// timers and periodic timers whose callback returned false are dropped.
func (s *Scheduler) Dispatch() {
	now := s.clock.Micros()
	kept := s.timers[:0]
	for _, t := range s.timers {
		if t.canceled {
			continue
		}
		if now < t.deadline {
			kept = append(kept, t)
			continue
		}
		again := t.cb()
		if t.canceled || !again || t.interval == 0 {
			t.canceled = true
			continue
		}
		t.deadline = now + t.interval
		kept = append(kept, t)
	}
	s.timers = kept
}

// NextDeadline reports the earliest pending deadline in microseconds and
// whether any timer is armed.
func (s *Scheduler) NextDeadline() (int64, bool) {
	var min int64
	found := false
	for _, t := range s.timers {
		if t.canceled {
			continue
		}
		if !found || t.deadline < min {
			min = t.deadline
			found = true
		}
	}
	return min, found
}
