package main

import (
	"encoding/binary"
	"math"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"opentranscribe/convert"
)

const (
	vadMode       = 3
	vadFrameMs    = 20
	vadFrameBytes = convert.SampleRate * vadFrameMs / 1000 * 2 // 640 bytes
	vadDebounce   = 3                                          // consecutive speech frames to confirm voice

	speechThreshold = 0.10 // share of speech frames for a tick to count as speaking
)

// vadProcessor classifies the converted wire stream. It is fed from the
// capture goroutine and read from the silence ticker.
type vadProcessor struct {
	vad *webrtcvad.VAD

	mu            sync.Mutex
	buf           []byte
	voiceDetected bool
	speechRun     int
	totalFrames   int
	speechFrames  int
	tickTotal     int
	tickSpeech    int
	level         float64
}

func newVADProcessor() (*vadProcessor, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, err
	}
	if err := v.SetMode(vadMode); err != nil {
		return nil, err
	}
	return &vadProcessor{vad: v}, nil
}

// Process consumes one wire chunk (16 kHz mono s16le).
func (p *vadProcessor) Process(chunk []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.level = chunkLevel(chunk)
	p.buf = append(p.buf, chunk...)
	for len(p.buf) >= vadFrameBytes {
		frame := p.buf[:vadFrameBytes]
		active, err := p.vad.Process(convert.SampleRate, frame)
		p.buf = p.buf[vadFrameBytes:]
		if err != nil {
			continue
		}
		p.totalFrames++
		if !active {
			p.speechRun = 0
			continue
		}
		p.speechFrames++
		p.speechRun++
		if p.speechRun >= vadDebounce {
			p.voiceDetected = true
		}
	}
}

func (p *vadProcessor) VoiceDetected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceDetected
}

// Level is the RMS of the most recent chunk in [0,1].
func (p *vadProcessor) Level() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *vadProcessor) Stats() (total, speech int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalFrames, p.speechFrames
}

// HasSpeechTick reports whether enough of the frames since the previous
// call were speech.
func (p *vadProcessor) HasSpeechTick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.totalFrames - p.tickTotal
	s := p.speechFrames - p.tickSpeech
	p.tickTotal, p.tickSpeech = p.totalFrames, p.speechFrames
	if t == 0 {
		return false
	}
	return float64(s)/float64(t) >= speechThreshold
}

func (p *vadProcessor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = p.buf[:0]
	p.voiceDetected = false
	p.speechRun = 0
	p.totalFrames, p.speechFrames = 0, 0
	p.tickTotal, p.tickSpeech = 0, 0
	p.level = 0
}

func chunkLevel(chunk []byte) float64 {
	n := len(chunk) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(chunk[i*2:]))) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
