package main

import (
	"fmt"
	"io"
	"sync"

	"opentranscribe/beep"
	"opentranscribe/session"
	"opentranscribe/transcriber"
)

// view is a session display that also shows the voice monitor.
type view interface {
	session.Display
	Level(level float64)
	NoVoice(on bool)
}

// lineDisplay prints one line per change, for --tui=false and replay.
type lineDisplay struct {
	mu   sync.Mutex
	w    io.Writer
	last string
}

func newLineDisplay(w io.Writer) *lineDisplay { return &lineDisplay{w: w} }

func (d *lineDisplay) printf(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.w, format+"\n", args...)
}

func (d *lineDisplay) Hypothesis(text string) {
	d.mu.Lock()
	same := text == d.last
	d.last = text
	d.mu.Unlock()
	if !same && text != "" {
		d.printf("… %s", text)
	}
}

func (d *lineDisplay) SessionState(s session.State)   { d.printf("[session] %s", s) }
func (d *lineDisplay) Connection(s transcriber.State) { d.printf("[connection] %s", s) }

func (d *lineDisplay) Error(msg string) {
	if msg != "" {
		d.printf("[error] %s", msg)
	}
}

func (d *lineDisplay) Level(float64) {}

func (d *lineDisplay) NoVoice(on bool) {
	if on {
		d.printf("[warning] no voice detected")
	}
}

// cueDisplay plays audio cues for session transitions and errors, and
// resets the voice monitor when a session goes live.
type cueDisplay struct {
	view
	onActive func()

	mu   sync.Mutex
	live bool
}

func (d *cueDisplay) SessionState(s session.State) {
	d.mu.Lock()
	wasLive := d.live
	switch s {
	case session.Active:
		d.live = true
	case session.Idle:
		d.live = false
	}
	d.mu.Unlock()

	switch {
	case s == session.Active && !wasLive:
		if d.onActive != nil {
			d.onActive()
		}
		beep.Play(beep.Start)
	case s == session.Idle && wasLive:
		beep.Play(beep.Stop)
	}
	d.view.SessionState(s)
}

func (d *cueDisplay) Error(msg string) {
	if msg != "" {
		beep.Play(beep.Error)
	}
	d.view.Error(msg)
}
