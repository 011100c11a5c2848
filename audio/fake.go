package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

// FileContext replays a 16-bit PCM WAV file as if it were a microphone.
// Frames keep the file's own rate and channel count.
type FileContext struct {
	pcm        []byte
	sampleRate uint32
	channels   uint32
	realtime   bool
}

func NewFileContext(wavPath string, realtime bool) (*FileContext, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid WAV file", wavPath)
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("%s: %d-bit samples, want 16", wavPath, dec.BitDepth)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", wavPath, err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%s: missing format", wavPath)
	}

	pcm := make([]byte, len(buf.Data)*2)
	for i, v := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	return NewPCMContext(pcm, uint32(buf.Format.SampleRate), uint32(buf.Format.NumChannels), realtime), nil
}

// NewPCMContext replays raw interleaved s16le samples.
func NewPCMContext(pcm []byte, sampleRate, channels uint32, realtime bool) *FileContext {
	return &FileContext{pcm: pcm, sampleRate: sampleRate, channels: channels, realtime: realtime}
}

func (f *FileContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "file", Name: "file"}}, nil
}

func (f *FileContext) Close() {}

func (f *FileContext) NewSource(_ *DeviceInfo, config CaptureConfig) (Source, error) {
	return newCapture(f.newDevice(), config), nil
}

// NewFileSource is NewSource with access to the replay completion signal.
func (f *FileContext) NewFileSource(config CaptureConfig) (Source, <-chan struct{}) {
	d := f.newDevice()
	return newCapture(d, config), d.done
}

func (f *FileContext) newDevice() *fileDevice {
	return &fileDevice{ctx: f, done: make(chan struct{})}
}

type fileDevice struct {
	ctx *FileContext

	// done closes once every sample of the file has been delivered.
	done     chan struct{}
	doneOnce sync.Once

	stopCh   chan struct{}
	feedDone chan struct{}
}

func (d *fileDevice) chunkBytes() int {
	frames := int(d.ctx.sampleRate) * FrameMs / 1000
	return max(1, frames) * int(d.ctx.channels) * 2
}

func (d *fileDevice) start(sink Sink) error {
	d.stopCh = make(chan struct{})
	d.feedDone = make(chan struct{})

	chunk := d.chunkBytes()
	interval := time.Duration(FrameMs) * time.Millisecond
	if !d.ctx.realtime {
		interval = time.Millisecond
	}

	go func(stop, feedDone chan struct{}) {
		defer close(feedDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		pcm := d.ctx.pcm
		for pos := 0; pos < len(pcm); {
			end := min(pos+chunk, len(pcm))
			buf := make([]byte, end-pos)
			copy(buf, pcm[pos:end])
			sink(Frame{Data: buf, SampleRate: d.ctx.sampleRate, Channels: d.ctx.channels, Format: FormatS16})
			pos = end

			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
		d.doneOnce.Do(func() { close(d.done) })

		// Past the end of the file the device stays open and yields silence,
		// like a muted microphone.
		silence := make([]byte, chunk)
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sink(Frame{Data: silence, SampleRate: d.ctx.sampleRate, Channels: d.ctx.channels, Format: FormatS16})
			}
		}
	}(d.stopCh, d.feedDone)

	return nil
}

func (d *fileDevice) stop() {
	close(d.stopCh)
	<-d.feedDone
}

func (d *fileDevice) close() {}

func (d *fileDevice) name() string { return "file" }
