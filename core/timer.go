package core

import (
	"sync"
	"time"
)

// TimerSet owns the live single-shot timers of one room, keyed by name.
// Arming a name cancels any earlier timer under the same name, so a room can
// never have two live round timers. A generation counter per slot makes a
// late fire from an already-replaced timer a silent no-op.
type TimerSet struct {
	mu     sync.Mutex
	closed bool
	slots  map[string]*timerSlot
}

type timerSlot struct {
	gen   uint64
	timer *time.Timer
}

func NewTimerSet() *TimerSet {
	return &TimerSet{slots: make(map[string]*timerSlot)}
}

// Arm schedules fn to run once after d, replacing any live timer with the
// same name. Arming a closed set is a no-op.
func (ts *TimerSet) Arm(name string, d time.Duration, fn func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.closed {
		return
	}
	slot, ok := ts.slots[name]
	if !ok {
		slot = &timerSlot{}
		ts.slots[name] = slot
	} else if slot.timer != nil {
		slot.timer.Stop()
	}
	slot.gen++
	gen := slot.gen
	slot.timer = time.AfterFunc(d, func() {
		ts.mu.Lock()
		stale := ts.closed || ts.slots[name] == nil || ts.slots[name].gen != gen
		if !stale {
			slot.timer = nil
		}
		ts.mu.Unlock()
		if stale {
			return
		}
		fn()
	})
}

// Cancel stops the named timer if it is still pending.
func (ts *TimerSet) Cancel(name string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	slot, ok := ts.slots[name]
	if !ok || slot.timer == nil {
		return false
	}
	slot.timer.Stop()
	slot.timer = nil
	slot.gen++
	return true
}

// Active reports whether a timer with this name is pending.
func (ts *TimerSet) Active(name string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	slot, ok := ts.slots[name]
	return ok && slot.timer != nil
}

// CancelAll stops every pending timer and refuses all future arms. Called
// synchronously before any other room teardown step.
func (ts *TimerSet) CancelAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.closed = true
	for _, slot := range ts.slots {
		if slot.timer != nil {
			slot.timer.Stop()
			slot.timer = nil
		}
		slot.gen++
	}
}
