package system

import (
	"reflect"
	"sort"
	"time"
)

// TimerFunc is a one-shot timer callback. The context is the opaque value
// passed to StartTimer.
type TimerFunc func(ctx any)

// A scheduled timer is identified by the (callback, context) pair; no
// separate handle exists. Callback identity is the function's code pointer.
type timerEntry struct {
	deadline time.Time
	fn       TimerFunc
	fnID     uintptr
	ctx      any
}

// StartTimer schedules fn to run once, no sooner than delay from now, during
// a Service pass. Scheduling the same (fn, ctx) pair again adds a second
// timer; it does not replace the first.
func (l *Layer) StartTimer(delay time.Duration, fn TimerFunc, ctx any) {
	if fn == nil {
		l.logger().Warn("ignoring timer with nil callback")
		return
	}
	entry := &timerEntry{
		deadline: l.clock.Now().Add(delay),
		fn:       fn,
		fnID:     reflect.ValueOf(fn).Pointer(),
		ctx:      ctx,
	}

	l.mu.Lock()
	l.timers = append(l.timers, entry)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// CancelTimer removes every pending timer matching the (fn, ctx) pair. If no
// timer matches, it is a no-op.
func (l *Layer) CancelTimer(fn TimerFunc, ctx any) {
	if fn == nil {
		return
	}
	fnID := reflect.ValueOf(fn).Pointer()

	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.timers[:0]
	for _, entry := range l.timers {
		if entry.fnID == fnID && contextsEqual(entry.ctx, ctx) {
			continue
		}
		kept = append(kept, entry)
	}
	l.timers = kept
}

func (l *Layer) nextDeadlineLocked() (time.Time, bool) {
	if len(l.timers) == 0 {
		return time.Time{}, false
	}
	next := l.timers[0].deadline
	for _, entry := range l.timers[1:] {
		if entry.deadline.Before(next) {
			next = entry.deadline
		}
	}
	return next, true
}

// fireTimers dispatches, in deadline order, every timer due at the start of
// the call. Timers started by a firing callback run on a later pass.
func (l *Layer) fireTimers() {
	now := l.clock.Now()

	l.mu.Lock()
	var due []*timerEntry
	kept := l.timers[:0]
	for _, entry := range l.timers {
		if !entry.deadline.After(now) {
			due = append(due, entry)
		} else {
			kept = append(kept, entry)
		}
	}
	l.timers = kept
	l.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, entry := range due {
		entry.fn(entry.ctx)
	}
}

// contextsEqual compares timer contexts without panicking on uncomparable
// values; an uncomparable context never matches, so such timers can fire but
// not be cancelled.
func contextsEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
