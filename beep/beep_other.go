//go:build !linux

package beep

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// One playback device is kept open; the data callback drains whatever cue
// is loaded and plays silence otherwise.
var (
	once    sync.Once
	samples map[Cue][]int16
	mctx    *malgo.AllocatedContext
	device  *malgo.Device
	mu      sync.Mutex

	current atomic.Pointer[[]byte]
	pos     atomic.Uint32
)

func Init() {
	once.Do(func() {
		samples = make(map[Cue][]int16, len(tones))
		for c, t := range tones {
			samples[c] = synth(t)
		}
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return
		}
		mctx = ctx
		if err := openDevice(); err != nil {
			mctx.Uninit()
			mctx = nil
		}
	})
}

func openDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate
	d, err := malgo.InitDevice(mctx.Context, config, malgo.DeviceCallbacks{Data: fill})
	if err != nil {
		return err
	}
	device = d
	return nil
}

func cueSamples(c Cue) []int16 {
	Init()
	return samples[c]
}

func fill(out, _ []byte, frames uint32) {
	clear(out)
	buf := current.Load()
	if buf == nil {
		return
	}
	p := pos.Load()
	n := copy(out[:frames*2], (*buf)[p:])
	pos.Store(p + uint32(n))
	if n == 0 {
		current.Store(nil)
	}
}

func play(s []int16) {
	if mctx == nil {
		return
	}
	buf := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}

	mu.Lock()
	defer mu.Unlock()
	if device == nil {
		return
	}
	device.Stop()
	pos.Store(0)
	current.Store(&buf)
	if err := device.Start(); err == nil {
		return
	}
	// recreate after sleep/wake invalidated the device
	device.Uninit()
	if err := openDevice(); err != nil || device.Start() != nil {
		current.Store(nil)
	}
}
