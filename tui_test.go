package main

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"opentranscribe/audio"
	"opentranscribe/session"
	"opentranscribe/transcriber"
)

func update(m tuiModel, msgs ...tea.Msg) tuiModel {
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(tuiModel)
	}
	return m
}

func TestTUIView(t *testing.T) {
	m := newTUIModel("ws://localhost:8000/stream", &audio.DeviceInfo{Name: "Built-in Microphone"}, "[type | rebase | hotkey toggle]", nil)

	idle := m.View()
	for _, want := range []string{"IDLE", "ws://localhost:8000/stream [disconnected]", "Built-in Microphone", "(nothing heard yet)"} {
		if !strings.Contains(idle, want) {
			t.Errorf("idle view missing %q:\n%s", want, idle)
		}
	}

	m = update(m,
		sessionStateMsg{session.Active},
		connStateMsg{transcriber.Connected},
		hypothesisMsg{"hello there"},
		noVoiceMsg{true},
	)
	live := m.View()
	for _, want := range []string{"LIVE", "[connected]", "hello there", "no voice detected"} {
		if !strings.Contains(live, want) {
			t.Errorf("live view missing %q:\n%s", want, live)
		}
	}

	m = update(m, errorMsg{"Connection closed: bye"}, sessionStateMsg{session.Idle})
	if m.noVoice || m.level != 0 {
		t.Error("idle should clear the voice monitor")
	}
	if v := m.View(); !strings.Contains(v, "Connection closed: bye") {
		t.Errorf("error not shown:\n%s", v)
	}
	m = update(m, errorMsg{""})
	if strings.Contains(m.View(), "Connection closed") {
		t.Error("empty error should clear the slot")
	}
}

func TestTUIKeys(t *testing.T) {
	toggled := make(chan struct{}, 1)
	m := newTUIModel("ws://x", nil, "", func() { toggled <- struct{}{} })
	if m.device != "system default" {
		t.Errorf("device = %q", m.device)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	<-toggled

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestDeviceLabelBluetooth(t *testing.T) {
	got := deviceLabel(&audio.DeviceInfo{Name: "AirPods Pro"})
	if !strings.Contains(got, "Bluetooth") {
		t.Errorf("deviceLabel = %q", got)
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  []string
	}{
		{"", 10, []string{""}},
		{"hello world", 20, []string{"hello world"}},
		{"hello world", 5, []string{"hello", "world"}},
		{"the quick brown fox", 10, []string{"the quick", "brown fox"}},
		{"abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"héllo wörld", 5, []string{"héllo", "wörld"}},
	}
	for _, tt := range tests {
		got := wrapText(tt.text, tt.width)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("wrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
		}
	}
}

func TestMeter(t *testing.T) {
	count := func(s string) int { return strings.Count(s, "█") }
	if n := count(meter(0, 30)); n != 0 {
		t.Errorf("silent meter filled %d", n)
	}
	if n := count(meter(1, 30)); n != 30 {
		t.Errorf("full-scale meter filled %d", n)
	}
	if n := count(meter(0.001, 30)); n != 0 {
		t.Errorf("-60 dB meter filled %d", n)
	}
	if lo, hi := count(meter(0.01, 30)), count(meter(0.1, 30)); lo >= hi {
		t.Errorf("meter not monotonic: %d >= %d", lo, hi)
	}
}
