package hotkey

import (
	"sync"
	"sync/atomic"
	"time"
)

type Signal int

const (
	SignalStart Signal = iota
	SignalStop
)

func (s Signal) String() string {
	if s == SignalStop {
		return "stop"
	}
	return "start"
}

// Trigger decides from chord presses when a session should start or stop.
// It asks active on every press rather than tracking the session itself, so
// sessions that end on their own (silence, connection loss) never leave it
// out of step.
type Trigger struct {
	mode      Mode
	longPress time.Duration
	active    func() bool

	signals chan Signal
	latched atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func NewTrigger(hk Hotkey, mode Mode, longPress time.Duration, active func() bool) *Trigger {
	t := &Trigger{
		mode:      mode,
		longPress: longPress,
		active:    active,
		signals:   make(chan Signal),
		done:      make(chan struct{}),
	}
	go t.run(hk)
	return t
}

func (t *Trigger) Signals() <-chan Signal { return t.signals }

// Latched reports whether the running session stays on after the chord is
// released. Held (push-to-talk) sessions are not latched.
func (t *Trigger) Latched() bool { return t.latched.Load() }

func (t *Trigger) Close() {
	t.once.Do(func() { close(t.done) })
}

func (t *Trigger) run(hk Hotkey) {
	for {
		select {
		case <-t.done:
			return
		case <-hk.Keydown():
		}

		if t.active() {
			// stop fires on release so the chord never leaks into the
			// focused application mid-emission
			if !t.waitUp(hk) || !t.send(SignalStop) {
				return
			}
			continue
		}

		t.latched.Store(t.mode == ModeToggle)
		if !t.send(SignalStart) {
			return
		}
		if t.mode == ModeToggle {
			if !t.waitUp(hk) {
				return
			}
			continue
		}

		timer := time.NewTimer(t.longPress)
		select {
		case <-t.done:
			timer.Stop()
			return
		case <-hk.Keyup():
			timer.Stop()
			t.latched.Store(true)
		case <-timer.C:
			if !t.waitUp(hk) || !t.send(SignalStop) {
				return
			}
		}
	}
}

func (t *Trigger) waitUp(hk Hotkey) bool {
	select {
	case <-t.done:
		return false
	case <-hk.Keyup():
		return true
	}
}

func (t *Trigger) send(s Signal) bool {
	select {
	case <-t.done:
		return false
	case t.signals <- s:
		return true
	}
}
