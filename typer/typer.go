// Package typer injects text into the focused application as keystrokes.
package typer

import (
	"fmt"
	"strings"
	"sync"

	cb "github.com/atotto/clipboard"
)

type Mode int

const (
	// ModeType sends one keystroke per character. Characters without a key
	// on the virtual keyboard go through the clipboard.
	ModeType Mode = iota
	// ModePaste puts the whole text on the clipboard and pastes it.
	ModePaste
)

func (m Mode) String() string {
	if m == ModePaste {
		return "paste"
	}
	return "type"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "type":
		return ModeType, nil
	case "paste":
		return ModePaste, nil
	}
	return 0, fmt.Errorf("unknown emit mode %q (want type or paste)", s)
}

type key struct {
	code  int
	shift bool
}

// keyboard is the platform input injector.
type keyboard interface {
	init() error
	lookup(r rune) (key, bool)
	tap(k key) error
	paste() error
}

type clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

type systemClipboard struct{}

func (systemClipboard) ReadAll() (string, error)   { return cb.ReadAll() }
func (systemClipboard) WriteAll(text string) error { return cb.WriteAll(text) }

type Typer struct {
	mode Mode
	kb   keyboard
	clip clipboard

	mu sync.Mutex
}

func New(mode Mode) *Typer {
	return &Typer{mode: mode, kb: newKeyboard(), clip: systemClipboard{}}
}

func (t *Typer) Mode() Mode { return t.mode }

// Init prepares the virtual keyboard. Emit calls it lazily; calling it at
// startup moves the device setup delay out of the first emission.
func (t *Typer) Init() error {
	return t.kb.init()
}

// Emit types text. Calls are serialized so concurrent emissions never
// interleave keystrokes.
func (t *Typer) Emit(text string) error {
	if text == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.kb.init(); err != nil {
		return err
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if t.mode == ModePaste {
		return t.pasteText(text)
	}

	var pending strings.Builder
	flush := func() error {
		if pending.Len() == 0 {
			return nil
		}
		err := t.pasteText(pending.String())
		pending.Reset()
		return err
	}
	for _, r := range text {
		k, ok := t.kb.lookup(r)
		if !ok {
			pending.WriteRune(r)
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		if err := t.kb.tap(k); err != nil {
			return fmt.Errorf("keystroke %q: %w", r, err)
		}
	}
	return flush()
}

func (t *Typer) pasteText(text string) error {
	if err := t.clip.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	if err := t.kb.paste(); err != nil {
		return fmt.Errorf("paste: %w", err)
	}
	return nil
}
