package main

import (
	"encoding/binary"
	"math"
	"testing"
)

func genTone(freq float64, durationMs int) []byte {
	n := 16000 * durationMs / 1000
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		sample := int16(16000 * math.Sin(2*math.Pi*freq*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
	}
	return buf
}

func genSilence(durationMs int) []byte {
	return make([]byte, 16000*durationMs/1000*2)
}

func newVAD(t *testing.T) *vadProcessor {
	t.Helper()
	vp, err := newVADProcessor()
	if err != nil {
		t.Fatal(err)
	}
	return vp
}

func TestVADSilence(t *testing.T) {
	vp := newVAD(t)
	vp.Process(genSilence(200))
	if vp.VoiceDetected() {
		t.Error("expected no voice on silence")
	}
	if total, speech := vp.Stats(); total != 10 || speech != 0 {
		t.Errorf("stats = %d/%d, want 10 frames, 0 speech", total, speech)
	}
	if vp.HasSpeechTick() {
		t.Error("silence tick counted as speech")
	}
}

func TestVADOddChunkSizes(t *testing.T) {
	vp := newVAD(t)
	silence := genSilence(200)
	for i := 0; i < len(silence); i += 100 {
		vp.Process(silence[i:min(i+100, len(silence))])
	}
	if total, _ := vp.Stats(); total != 10 {
		t.Errorf("frames = %d, want 10", total)
	}
}

func TestVADTickWithoutFrames(t *testing.T) {
	vp := newVAD(t)
	if vp.HasSpeechTick() {
		t.Error("empty tick counted as speech")
	}
}

func TestVADLevelAndReset(t *testing.T) {
	vp := newVAD(t)
	vp.Process(genTone(440, 200))
	// sine at amplitude 16000/32768 has RMS of about 0.345
	if l := vp.Level(); l < 0.3 || l > 0.4 {
		t.Errorf("level = %v", l)
	}
	vp.Reset()
	if vp.VoiceDetected() || vp.Level() != 0 {
		t.Error("reset did not clear state")
	}
	if total, _ := vp.Stats(); total != 0 {
		t.Errorf("frames after reset = %d", total)
	}
}
