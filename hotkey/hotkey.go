// Package hotkey turns a global key chord into start/stop requests.
package hotkey

import (
	"fmt"
	"strings"
)

// Chord is the global shortcut.
const Chord = "Ctrl+Shift+Space"

// Hotkey reports presses and releases of the global chord.
type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

type Mode int

const (
	// ModeToggle starts on one press and stops on the next.
	ModeToggle Mode = iota
	// ModeHybrid toggles on a short tap and talks while held past the
	// long-press threshold.
	ModeHybrid
)

func (m Mode) String() string {
	if m == ModeHybrid {
		return "hybrid"
	}
	return "toggle"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "toggle":
		return ModeToggle, nil
	case "hybrid":
		return ModeHybrid, nil
	}
	return 0, fmt.Errorf("unknown hotkey mode %q (want toggle or hybrid)", s)
}
