package system

import (
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"
)

// Event is one unit of deferred work. Endpoints post events from their
// transport goroutines; the layer delivers each one on the goroutine that
// calls Service.
type Event interface {
	// Deliver runs the event. It is invoked exactly once, never
	// concurrently with another event or timer.
	Deliver()
}

// Layer is the single-threaded event and timer scheduler. It spawns no
// goroutines of its own; the owner drives it by calling Service repeatedly.
type Layer struct {
	mu     sync.Mutex
	events *queue.Queue
	timers []*timerEntry
	wake   chan struct{}
	clock  Clock
}

// Option configures a Layer.
type Option func(*Layer)

// WithClock overrides the clock used for timer deadlines.
func WithClock(c Clock) Option {
	return func(l *Layer) {
		l.clock = c
	}
}

// NewLayer creates an empty layer.
func NewLayer(opts ...Option) *Layer {
	l := &Layer{
		events: queue.New(),
		wake:   make(chan struct{}, 1),
		clock:  RealClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PostEvent queues ev for delivery on a subsequent Service pass and wakes a
// blocked Service call. Safe to call from any goroutine, including from
// inside a callback.
func (l *Layer) PostEvent(ev Event) {
	l.mu.Lock()
	l.events.Add(ev)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Service performs one cooperative pass. It waits up to timeout for an event
// to be posted or a timer to come due, delivers the events that were queued
// when the pass began, then fires elapsed timers. Events posted and timers
// started during dispatch are handled on a later pass.
func (l *Layer) Service(timeout time.Duration) {
	l.waitReady(timeout)

	l.mu.Lock()
	pending := l.events.Length()
	l.mu.Unlock()

	for i := 0; i < pending; i++ {
		ev := l.popEvent()
		if ev == nil {
			break
		}
		ev.Deliver()
	}

	l.fireTimers()
}

func (l *Layer) popEvent() Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.events.Length() == 0 {
		return nil
	}
	return l.events.Remove().(Event)
}

// waitReady blocks until an event is queued, a timer is due, the wake
// channel fires, or timeout elapses, whichever comes first.
func (l *Layer) waitReady(timeout time.Duration) {
	wait := timeout

	l.mu.Lock()
	if l.events.Length() > 0 {
		wait = 0
	} else if next, ok := l.nextDeadlineLocked(); ok {
		if d := next.Sub(l.clock.Now()); d < wait {
			wait = d
		}
	}
	l.mu.Unlock()

	if wait <= 0 {
		// Consume a stale wakeup so it cannot cut the next pass short.
		select {
		case <-l.wake:
		default:
		}
		return
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-l.wake:
	case <-t.C:
	}
}

func (l *Layer) logger() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"component": "system.Layer",
	})
}
