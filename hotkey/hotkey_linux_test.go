package hotkey

import "testing"

func TestChord(t *testing.T) {
	type ev struct {
		code  uint16
		value int32
	}
	tests := []struct {
		name   string
		events []ev
		downs  int
		ups    int
	}{
		{"full chord", []ev{{keyLCtrl, 1}, {keyLShift, 1}, {keySpace, 1}, {keySpace, 0}}, 1, 1},
		{"right modifiers", []ev{{keyRCtrl, 1}, {keyRShift, 1}, {keySpace, 1}, {keySpace, 0}}, 1, 1},
		{"space alone", []ev{{keySpace, 1}, {keySpace, 0}}, 0, 0},
		{"ctrl only", []ev{{keyLCtrl, 1}, {keySpace, 1}, {keySpace, 0}}, 0, 0},
		{"autorepeat", []ev{{keyLCtrl, 1}, {keyLShift, 1}, {keySpace, 1}, {keySpace, 2}, {keySpace, 2}, {keySpace, 0}}, 1, 1},
		{"shift released first", []ev{{keyLCtrl, 1}, {keyLShift, 1}, {keyLShift, 0}, {keySpace, 1}}, 0, 0},
		{"modifier held through two taps", []ev{{keyLCtrl, 1}, {keyLShift, 1}, {keySpace, 1}, {keySpace, 0}, {keySpace, 1}, {keySpace, 0}}, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c chord
			var downs, ups int
			for _, e := range tt.events {
				d, u := c.feed(e.code, e.value)
				if d {
					downs++
				}
				if u {
					ups++
				}
			}
			if downs != tt.downs || ups != tt.ups {
				t.Errorf("downs=%d ups=%d, want %d/%d", downs, ups, tt.downs, tt.ups)
			}
		})
	}
}
