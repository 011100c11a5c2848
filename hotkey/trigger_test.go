package hotkey

import (
	"sync/atomic"
	"testing"
	"time"
)

// session mirrors a controller driven by the trigger's signals.
type session struct {
	active atomic.Bool
}

func (s *session) isActive() bool { return s.active.Load() }

func expect(t *testing.T, tr *Trigger, s *session, want Signal) {
	t.Helper()
	select {
	case got := <-tr.Signals():
		if got != want {
			t.Fatalf("signal = %v, want %v", got, want)
		}
		s.active.Store(got == SignalStart)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %v", want)
	}
}

func expectNone(t *testing.T, tr *Trigger) {
	t.Helper()
	select {
	case got := <-tr.Signals():
		t.Fatalf("unexpected signal %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestToggleMode(t *testing.T) {
	fk := NewFake()
	s := &session{}
	tr := NewTrigger(fk, ModeToggle, 50*time.Millisecond, s.isActive)
	defer tr.Close()

	fk.Press()
	expect(t, tr, s, SignalStart)
	fk.Release()
	if !tr.Latched() {
		t.Error("toggle sessions are always latched")
	}

	// a long hold still only toggles
	fk.Press()
	expectNone(t, tr)
	fk.Release()
	expect(t, tr, s, SignalStop)
}

func TestHybridLongPressTalks(t *testing.T) {
	fk := NewFake()
	s := &session{}
	threshold := 50 * time.Millisecond
	tr := NewTrigger(fk, ModeHybrid, threshold, s.isActive)
	defer tr.Close()

	fk.Press()
	expect(t, tr, s, SignalStart)
	time.Sleep(threshold + 20*time.Millisecond)
	if tr.Latched() {
		t.Error("held session must not be latched")
	}
	fk.Release()
	expect(t, tr, s, SignalStop)
}

func TestHybridShortTapLatches(t *testing.T) {
	fk := NewFake()
	s := &session{}
	tr := NewTrigger(fk, ModeHybrid, 200*time.Millisecond, s.isActive)
	defer tr.Close()

	fk.Press()
	expect(t, tr, s, SignalStart)
	fk.Release()
	expectNone(t, tr)
	if !tr.Latched() {
		t.Error("short tap should latch")
	}

	fk.Tap()
	expect(t, tr, s, SignalStop)
}

func TestSessionEndedElsewhere(t *testing.T) {
	fk := NewFake()
	s := &session{}
	tr := NewTrigger(fk, ModeToggle, 50*time.Millisecond, s.isActive)
	defer tr.Close()

	fk.Tap()
	expect(t, tr, s, SignalStart)

	// silence auto-stop ends the session without the hotkey
	s.active.Store(false)

	fk.Tap()
	expect(t, tr, s, SignalStart)
}

func TestHybridCycles(t *testing.T) {
	fk := NewFake()
	s := &session{}
	threshold := 50 * time.Millisecond
	tr := NewTrigger(fk, ModeHybrid, threshold, s.isActive)
	defer tr.Close()

	for i := 0; i < 2; i++ {
		fk.Press()
		expect(t, tr, s, SignalStart)
		time.Sleep(threshold + 20*time.Millisecond)
		fk.Release()
		expect(t, tr, s, SignalStop)

		fk.Press()
		expect(t, tr, s, SignalStart)
		fk.Release()
		time.Sleep(20 * time.Millisecond)
		fk.Tap()
		expect(t, tr, s, SignalStop)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeToggle, "toggle": ModeToggle, "Hybrid": ModeHybrid} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("ptt"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
