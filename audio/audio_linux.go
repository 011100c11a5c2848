//go:build linux

package audio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
)

type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	c, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulseContext{client: c}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	var devices []DeviceInfo
	for _, s := range sources {
		devices = append(devices, DeviceInfo{
			ID:   s.ID(),
			Name: s.Name(),
		})
	}
	return devices, nil
}

func (p *pulseContext) NewSource(device *DeviceInfo, config CaptureConfig) (Source, error) {
	return newCapture(&pulseDevice{client: p.client, device: device}, config), nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

// pulseDevice records mono s16 at the source's native rate; the pulse
// server does any channel mixing.
type pulseDevice struct {
	client *pulse.Client
	device *DeviceInfo
	sink   atomic.Pointer[Sink]

	mu     sync.Mutex
	stream *pulse.RecordStream
	halt   chan struct{}
	done   chan struct{}
}

func (d *pulseDevice) resolveSource() (*pulse.Source, error) {
	if d.device != nil {
		if source, err := d.client.SourceByID(d.device.ID); err == nil && source != nil {
			return source, nil
		}
	}
	return d.client.DefaultSource()
}

func (d *pulseDevice) start(sink Sink) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	source, err := d.resolveSource()
	if err != nil {
		return fmt.Errorf("pulse source: %w", err)
	}
	rate := source.SampleRate()
	if rate <= 0 {
		return fmt.Errorf("pulse source %q reports sample rate %d", source.Name(), rate)
	}
	d.sink.Store(&sink)

	writer := pulse.Int16Writer(func(buf []int16) (int, error) {
		if len(buf) == 0 {
			return 0, nil
		}
		s := d.sink.Load()
		if s == nil {
			return len(buf), nil
		}
		data := make([]byte, len(buf)*2)
		for i, v := range buf {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
		}
		(*s)(Frame{Data: data, SampleRate: uint32(rate), Channels: 1, Format: FormatS16})
		return len(buf), nil
	})

	stream, err := d.client.NewRecord(writer,
		pulse.RecordMono,
		pulse.RecordSampleRate(rate),
		pulse.RecordLatency(float64(FrameMs)/1000),
		pulse.RecordSource(source),
	)
	if err != nil {
		d.sink.Store(nil)
		return fmt.Errorf("pulse record: %w", err)
	}

	d.stream = stream
	d.halt = make(chan struct{})
	d.done = make(chan struct{})

	go func(halt, done chan struct{}) {
		defer close(done)
		stream.Start()
		<-halt
		stream.Stop()
		stream.Close()
	}(d.halt, d.done)

	return nil
}

func (d *pulseDevice) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink.Store(nil)
	if d.halt != nil {
		close(d.halt)
		<-d.done
		d.halt = nil
		d.stream = nil
	}
}

func (d *pulseDevice) close() {}

func (d *pulseDevice) name() string {
	if d.device != nil {
		return d.device.Name
	}
	return "system default"
}
