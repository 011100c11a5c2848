package typer

import "testing"

func TestUinputLookup(t *testing.T) {
	kb := &uinputKeyboard{}
	tests := []struct {
		r     rune
		code  int
		shift bool
		ok    bool
	}{
		{'a', 30, false, true},
		{'Z', 44, true, true},
		{'0', 11, false, true},
		{'1', 2, false, true},
		{' ', 57, false, true},
		{'\n', 28, false, true},
		{'?', 53, true, true},
		{'"', 40, true, true},
		{'é', 0, false, false},
		{'€', 0, false, false},
	}
	for _, tt := range tests {
		k, ok := kb.lookup(tt.r)
		if ok != tt.ok {
			t.Errorf("lookup(%q) ok = %v", tt.r, ok)
			continue
		}
		if ok && (k.code != tt.code || k.shift != tt.shift) {
			t.Errorf("lookup(%q) = %+v, want code %d shift %v", tt.r, k, tt.code, tt.shift)
		}
	}
}
