package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"opentranscribe/audio"
	"opentranscribe/hotkey"
	"opentranscribe/session"
	"opentranscribe/transcriber"
)

type sessionStateMsg struct{ State session.State }
type connStateMsg struct{ State transcriber.State }
type hypothesisMsg struct{ Text string }
type errorMsg struct{ Text string }
type levelMsg struct{ Level float64 }
type noVoiceMsg struct{ On bool }
type tickMsg time.Time

type tuiModel struct {
	state      session.State
	conn       transcriber.State
	started    time.Time
	elapsed    time.Duration
	level      float64
	noVoice    bool
	hypothesis string
	errText    string
	width      int

	server string
	device string
	modes  string

	// toggle runs off the UI goroutine when the user presses enter.
	toggle func()
}

var (
	styleLive    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleIdle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleBusy    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true)
	styleText    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleHelp    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	styleHelpKey = styleHelp.Bold(true)
	styleMeterOn = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

func newTUIModel(server string, dev *audio.DeviceInfo, modes string, toggle func()) tuiModel {
	return tuiModel{server: server, device: deviceLabel(dev), modes: modes, toggle: toggle}
}

func deviceLabel(dev *audio.DeviceInfo) string {
	if dev == nil {
		return "system default"
	}
	if audio.IsBluetooth(dev.Name) {
		return dev.Name + " (Bluetooth: reduced quality)"
	}
	return dev.Name
}

func tuiTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m tuiModel) Init() tea.Cmd { return tuiTick() }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "enter", " ":
			if m.toggle != nil {
				go m.toggle()
			}
		}
	case tickMsg:
		if m.state == session.Active {
			m.elapsed = time.Since(m.started)
		}
		return m, tuiTick()
	case sessionStateMsg:
		if msg.State == session.Active && m.state != session.Active {
			m.started = time.Now()
			m.elapsed = 0
		}
		if msg.State == session.Idle {
			m.level = 0
			m.noVoice = false
		}
		m.state = msg.State
	case connStateMsg:
		m.conn = msg.State
	case hypothesisMsg:
		m.hypothesis = msg.Text
	case errorMsg:
		m.errText = msg.Text
	case levelMsg:
		// smooth so the meter does not flicker between chunks
		m.level = m.level*0.6 + msg.Level*0.4
	case noVoiceMsg:
		m.noVoice = msg.On
	}
	return m, nil
}

func (m tuiModel) View() string {
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}

	switch m.state {
	case session.Active:
		line(styleLive.Render(fmt.Sprintf("● LIVE %.1fs", m.elapsed.Seconds())))
	case session.Starting, session.Stopping:
		line(styleBusy.Render("◌ " + strings.ToUpper(m.state.String())))
	default:
		line(styleIdle.Render("○ IDLE"))
	}
	line(styleDim.Render(fmt.Sprintf("server: %s [%s]", m.server, m.conn)))
	line(styleDim.Render("mic: " + m.device))
	if m.modes != "" {
		line(styleDim.Render(m.modes))
	}
	if m.state == session.Active {
		line(meter(m.level, 30))
		if m.noVoice {
			line(styleWarn.Render("⚠ no voice detected"))
		}
	}
	if m.errText != "" {
		line(styleError.Render(m.errText))
	}

	line("")
	width := m.width - 2
	if width < 20 {
		width = 60
	}
	if m.hypothesis == "" {
		line(styleIdle.Render("(nothing heard yet)"))
	} else {
		for _, l := range wrapText(m.hypothesis, width) {
			line(styleText.Render(l))
		}
	}

	line("")
	line(styleHelpKey.Render(hotkey.Chord) + styleHelp.Render(" or enter to dictate, q to quit"))
	b.WriteString(styleHelp.Render("opentranscribe " + version))
	return b.String()
}

// meter draws level on a log scale so quiet speech still moves it.
func meter(level float64, width int) string {
	filled := 0
	if level > 0 {
		// -60 dBFS .. 0 dBFS
		db := 20 * math.Log10(level)
		filled = int((db + 60) / 60 * float64(width))
	}
	filled = max(0, min(width, filled))
	return styleMeterOn.Render(strings.Repeat("█", filled)) + styleIdle.Render(strings.Repeat("░", width-filled))
}

// wrapText breaks text at spaces so no line exceeds width runes. Words
// longer than width are split.
func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 1
	}
	var lines []string
	var cur []rune
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > width {
			if len(cur) > 0 {
				lines = append(lines, string(cur))
				cur = cur[:0]
			}
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		switch {
		case len(cur) == 0:
			cur = append(cur, w...)
		case len(cur)+1+len(w) <= width:
			cur = append(append(cur, ' '), w...)
		default:
			lines = append(lines, string(cur))
			cur = append(cur[:0:0], w...)
		}
	}
	if len(cur) > 0 || len(lines) == 0 {
		lines = append(lines, string(cur))
	}
	return lines
}

// tuiDisplay forwards controller notifications to the running program.
type tuiDisplay struct {
	p *tea.Program
}

func (d tuiDisplay) Hypothesis(text string)         { d.p.Send(hypothesisMsg{Text: text}) }
func (d tuiDisplay) SessionState(s session.State)   { d.p.Send(sessionStateMsg{State: s}) }
func (d tuiDisplay) Connection(s transcriber.State) { d.p.Send(connStateMsg{State: s}) }
func (d tuiDisplay) Error(msg string)               { d.p.Send(errorMsg{Text: msg}) }
func (d tuiDisplay) Level(level float64)            { d.p.Send(levelMsg{Level: level}) }
func (d tuiDisplay) NoVoice(on bool)                { d.p.Send(noVoiceMsg{On: on}) }
