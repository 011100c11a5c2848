//go:build !linux

package typer

import (
	"sync"

	"github.com/micmonay/keybd_event"
)

// keybdKeyboard injects keys through the OS event API. Only letters, digits
// and space are mapped; everything else goes through the clipboard.
type keybdKeyboard struct {
	once sync.Once
	err  error
	kb   keybd_event.KeyBonding
}

func newKeyboard() keyboard { return &keybdKeyboard{} }

func (k *keybdKeyboard) init() error {
	k.once.Do(func() {
		k.kb, k.err = keybd_event.NewKeyBonding()
	})
	return k.err
}

var letterKeys = [26]int{
	keybd_event.VK_A, keybd_event.VK_B, keybd_event.VK_C, keybd_event.VK_D,
	keybd_event.VK_E, keybd_event.VK_F, keybd_event.VK_G, keybd_event.VK_H,
	keybd_event.VK_I, keybd_event.VK_J, keybd_event.VK_K, keybd_event.VK_L,
	keybd_event.VK_M, keybd_event.VK_N, keybd_event.VK_O, keybd_event.VK_P,
	keybd_event.VK_Q, keybd_event.VK_R, keybd_event.VK_S, keybd_event.VK_T,
	keybd_event.VK_U, keybd_event.VK_V, keybd_event.VK_W, keybd_event.VK_X,
	keybd_event.VK_Y, keybd_event.VK_Z,
}

var digitKeys = [10]int{
	keybd_event.VK_0, keybd_event.VK_1, keybd_event.VK_2, keybd_event.VK_3,
	keybd_event.VK_4, keybd_event.VK_5, keybd_event.VK_6, keybd_event.VK_7,
	keybd_event.VK_8, keybd_event.VK_9,
}

func (k *keybdKeyboard) lookup(r rune) (key, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return key{letterKeys[r-'a'], false}, true
	case r >= 'A' && r <= 'Z':
		return key{letterKeys[r-'A'], true}, true
	case r >= '0' && r <= '9':
		return key{digitKeys[r-'0'], false}, true
	case r == ' ':
		return key{keybd_event.VK_SPACE, false}, true
	}
	return key{}, false
}

func (k *keybdKeyboard) tap(kk key) error {
	k.kb.SetKeys(kk.code)
	k.kb.HasSHIFT(kk.shift)
	k.kb.HasCTRL(false)
	pasteModifier(&k.kb, false)
	return k.kb.Launching()
}

func (k *keybdKeyboard) paste() error {
	k.kb.SetKeys(keybd_event.VK_V)
	k.kb.HasSHIFT(false)
	pasteModifier(&k.kb, true)
	return k.kb.Launching()
}

// Verify checks that the keyboard event binding can be created.
func Verify() (string, error) {
	k := &keybdKeyboard{}
	if err := k.init(); err != nil {
		return "", err
	}
	return "keyboard event binding OK (" + pasteChord + ")", nil
}

func Available() error {
	return (&keybdKeyboard{}).init()
}
