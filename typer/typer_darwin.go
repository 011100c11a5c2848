package typer

import "github.com/micmonay/keybd_event"

const pasteChord = "Cmd+V"

func pasteModifier(kb *keybd_event.KeyBonding, on bool) {
	kb.HasSuper(on)
}
