//go:build !linux

package audio

import (
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	var result []DeviceInfo
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:   hex.EncodeToString(d.ID.Pointer()[:]),
			Name: d.Name(),
		})
	}
	return result, nil
}

func (m *malgoContext) NewSource(device *DeviceInfo, config CaptureConfig) (Source, error) {
	d := &malgoDevice{ctx: m.ctx, info: device}
	if device != nil {
		idBytes, err := hex.DecodeString(device.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid device ID: %w", err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		d.id = &devID
	}
	return newCapture(d, config), nil
}

func (m *malgoContext) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

// malgoDevice opens the hardware at its native rate and channel count. The
// device is initialized on start and torn down on stop so a fresh sink
// never sees buffers from a previous session.
type malgoDevice struct {
	ctx  *malgo.AllocatedContext
	info *DeviceInfo
	id   *malgo.DeviceID

	dev  *malgo.Device
	sink atomic.Pointer[Sink]
}

func (d *malgoDevice) start(sink Sink) error {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.SampleRate = 0
	cfg.PeriodSizeInMilliseconds = FrameMs
	if d.id != nil {
		cfg.Capture.DeviceID = d.id.Pointer()
	}

	d.sink.Store(&sink)
	var rate, channels atomic.Uint32

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, _ uint32) {
			s := d.sink.Load()
			if s == nil || len(data) == 0 {
				return
			}
			buf := make([]byte, len(data))
			copy(buf, data)
			(*s)(Frame{Data: buf, SampleRate: rate.Load(), Channels: channels.Load(), Format: FormatS16})
		},
	}

	dev, err := malgo.InitDevice(d.ctx.Context, cfg, callbacks)
	if err != nil {
		d.sink.Store(nil)
		return err
	}
	if dev.CaptureFormat() != malgo.FormatS16 {
		dev.Uninit()
		d.sink.Store(nil)
		return fmt.Errorf("device negotiated format %v, want s16", dev.CaptureFormat())
	}
	rate.Store(dev.SampleRate())
	channels.Store(dev.CaptureChannels())

	if err := dev.Start(); err != nil {
		dev.Uninit()
		d.sink.Store(nil)
		return err
	}
	d.dev = dev
	return nil
}

func (d *malgoDevice) stop() {
	d.sink.Store(nil)
	if d.dev != nil {
		d.dev.Stop()
		d.dev.Uninit()
		d.dev = nil
	}
}

func (d *malgoDevice) close() {}

func (d *malgoDevice) name() string {
	if d.info != nil {
		return d.info.Name
	}
	return "system default"
}
