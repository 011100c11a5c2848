// Package convert turns native capture buffers into the wire format the
// recognizer expects: 16 kHz, mono, signed 16-bit little-endian PCM.
package convert

import (
	"encoding/binary"
	"math"

	goaudio "github.com/go-audio/audio"

	"opentranscribe/audio"
)

const (
	SampleRate     = 16000
	Channels       = 1
	BitsPerSample  = 16
	BytesPerSecond = SampleRate * Channels * BitsPerSample / 8
)

type Converter struct {
	target *goaudio.Format
}

func New() *Converter {
	return &Converter{target: &goaudio.Format{NumChannels: Channels, SampleRate: SampleRate}}
}

// Target describes the wire format produced by Convert.
func (c *Converter) Target() goaudio.Format {
	return *c.target
}

// Convert returns one wire chunk for the frame. The second result is false
// when the frame cannot be converted; callers drop it and carry on.
func (c *Converter) Convert(f audio.Frame) ([]byte, bool) {
	if f.SampleRate == 0 || f.Channels == 0 {
		return nil, false
	}
	in, ok := decode(f)
	if !ok || in.NumFrames() == 0 {
		return nil, false
	}

	mono := downmix(in)
	n := int(math.Round(float64(len(mono)) * SampleRate / float64(f.SampleRate)))
	if n == 0 {
		return nil, false
	}

	out := &goaudio.Float32Buffer{
		Format:         c.target,
		Data:           resample(mono, n),
		SourceBitDepth: BitsPerSample,
	}
	return encode(out), true
}

func decode(f audio.Frame) (*goaudio.Float32Buffer, bool) {
	if f.FrameCount() == 0 {
		return nil, false
	}
	format := &goaudio.Format{NumChannels: int(f.Channels), SampleRate: int(f.SampleRate)}

	switch f.Format {
	case audio.FormatS16:
		ib := &goaudio.IntBuffer{
			Format:         format,
			Data:           make([]int, len(f.Data)/2),
			SourceBitDepth: 16,
		}
		for i := range ib.Data {
			ib.Data[i] = int(int16(binary.LittleEndian.Uint16(f.Data[i*2:])))
		}
		return ib.AsFloat32Buffer(), true
	case audio.FormatF32:
		fb := &goaudio.Float32Buffer{
			Format: format,
			Data:   make([]float32, len(f.Data)/4),
		}
		for i := range fb.Data {
			v := math.Float32frombits(binary.LittleEndian.Uint32(f.Data[i*4:]))
			if math.IsNaN(float64(v)) {
				v = 0
			}
			fb.Data[i] = v
		}
		return fb, true
	}
	return nil, false
}

func downmix(buf *goaudio.Float32Buffer) []float32 {
	ch := buf.Format.NumChannels
	if ch == 1 {
		return buf.Data
	}
	frames := buf.NumFrames()
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for _, s := range buf.Data[i*ch : (i+1)*ch] {
			sum += s
		}
		mono[i] = sum / float32(ch)
	}
	return mono
}

// resample maps len(in) samples onto n. Downsampling averages every input
// sample that falls inside an output period; upsampling interpolates
// linearly between neighbours.
func resample(in []float32, n int) []float32 {
	if n == len(in) {
		return in
	}
	out := make([]float32, n)
	step := float64(len(in)) / float64(n)

	if n < len(in) {
		for i := range out {
			lo := int(float64(i) * step)
			hi := min(len(in), max(lo+1, int(math.Ceil(float64(i+1)*step))))
			var sum float32
			for _, s := range in[lo:hi] {
				sum += s
			}
			out[i] = sum / float32(hi-lo)
		}
		return out
	}

	last := len(in) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		frac := float32(pos - float64(idx))
		a := in[idx]
		b := in[min(idx+1, last)]
		out[i] = a + (b-a)*frac
	}
	return out
}

func encode(buf *goaudio.Float32Buffer) []byte {
	scale := float64(goaudio.IntMaxSignedValue(buf.SourceBitDepth) + 1)
	out := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		v := math.Round(float64(s) * scale)
		v = max(math.MinInt16, min(math.MaxInt16, v))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
