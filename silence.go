package main

import "time"

const (
	tickInterval     = 100 * time.Millisecond
	silenceWarnAfter = 8 * time.Second
	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // hysteresis for clearing the warning
)

type silenceEvent int

const (
	silenceNone silenceEvent = iota
	silenceWarn
	silenceWarnClear
	silenceRepeat    // warning still active, re-cue
	silenceAutoClose // latched sessions only
)

// silenceMonitor keeps a sliding window of per-tick speech flags. Held
// sessions only get the warning; latched ones are also re-cued and
// eventually stopped.
type silenceMonitor struct {
	warnAt   int
	windowSz int
	latched  func() bool

	ticks       int
	window      []bool
	speechCount int
	warned      bool
	lastCue     int
}

func newSilenceMonitor(latched func() bool, autoClose time.Duration) *silenceMonitor {
	warnAt := int(silenceWarnAfter / tickInterval)
	windowSz := max(int(autoClose/tickInterval), warnAt)
	return &silenceMonitor{
		warnAt:   warnAt,
		windowSz: windowSz,
		latched:  latched,
		window:   make([]bool, windowSz),
	}
}

// ratio is the speech share over the last n ticks.
func (m *silenceMonitor) ratio(n int) float64 {
	n = min(n, m.ticks)
	if n == 0 {
		return 1
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.window[(m.ticks-1-i+m.windowSz)%m.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Tick(speech bool) silenceEvent {
	idx := m.ticks % m.windowSz
	if m.ticks >= m.windowSz && m.window[idx] {
		m.speechCount--
	}
	m.window[idx] = speech
	if speech {
		m.speechCount++
	}
	m.ticks++

	r := m.ratio(m.warnAt)
	if m.ticks >= m.warnAt && r < speechMinRatio && !m.warned {
		m.warned = true
		m.lastCue = m.ticks
		return silenceWarn
	}
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return silenceWarnClear
	}
	if !m.latched() {
		return silenceNone
	}
	if m.ticks >= m.windowSz && float64(m.speechCount)/float64(m.windowSz) < speechMinRatio {
		return silenceAutoClose
	}
	if m.warned && m.ticks-m.lastCue >= m.warnAt {
		m.lastCue = m.ticks
		return silenceRepeat
	}
	return silenceNone
}
