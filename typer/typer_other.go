//go:build !linux && !darwin

package typer

import "github.com/micmonay/keybd_event"

const pasteChord = "Ctrl+V"

func pasteModifier(kb *keybd_event.KeyBonding, on bool) {
	kb.HasCTRL(on)
}
