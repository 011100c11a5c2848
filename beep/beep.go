// Package beep plays short audio cues when a session starts, stops or fails.
package beep

import (
	"math"
	"sync/atomic"
)

const sampleRate = 44100

type Cue int

const (
	Start Cue = iota
	Stop
	Error
)

type tone struct {
	freq     float64
	volume   float64
	decay    float64
	duration float64
	repeat   int
	gap      float64
}

var tones = map[Cue]tone{
	Start: {freq: 1200, volume: 0.5, decay: 60, duration: 0.12, repeat: 1},
	Stop:  {freq: 900, volume: 0.5, decay: 40, duration: 0.15, repeat: 1},
	Error: {freq: 350, volume: 0.6, decay: 30, duration: 0.08, repeat: 2, gap: 0.05},
}

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

// Play starts cue in the background. It never blocks the caller.
func Play(c Cue) {
	if disabled.Load() {
		return
	}
	samples := cueSamples(c)
	if samples == nil {
		return
	}
	go play(samples)
}

// synth renders a decaying sine as mono s16 samples.
func synth(t tone) []int16 {
	n := int(sampleRate * t.duration)
	gap := int(sampleRate * t.gap)
	out := make([]int16, 0, t.repeat*(n+gap))
	for r := 0; r < t.repeat; r++ {
		if r > 0 {
			out = append(out, make([]int16, gap)...)
		}
		for i := 0; i < n; i++ {
			sec := float64(i) / sampleRate
			v := math.Sin(2*math.Pi*t.freq*sec) * math.MaxInt16 * t.volume * math.Exp(-sec*t.decay)
			out = append(out, int16(v))
		}
	}
	return out
}
