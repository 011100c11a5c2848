package audio

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

const WAVHeaderSize = 44

// FrameMs is the capture buffer period requested from the backends.
const FrameMs = 20

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceStartFailed = errors.New("capture device failed to start")
)

type SampleFormat int

const (
	FormatS16 SampleFormat = iota // interleaved signed 16-bit little-endian
	FormatF32                     // interleaved float32 little-endian
)

func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatS16:
		return 2
	case FormatF32:
		return 4
	}
	return 0
}

func (f SampleFormat) String() string {
	switch f {
	case FormatS16:
		return "s16le"
	case FormatF32:
		return "f32le"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Frame is one raw capture buffer in the device's native format.
type Frame struct {
	Data       []byte
	SampleRate uint32
	Channels   uint32
	Format     SampleFormat
}

// FrameCount returns the number of sample frames in the buffer, or 0 when
// the buffer layout is inconsistent.
func (f Frame) FrameCount() int {
	stride := int(f.Channels) * f.Format.BytesPerSample()
	if stride == 0 || len(f.Data)%stride != 0 {
		return 0
	}
	return len(f.Data) / stride
}

type Sink func(Frame)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type CaptureConfig struct {
	// Allowed is the microphone capability gate. It is consulted on every
	// Start before the device is touched. Nil means always allowed.
	Allowed func() bool
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewSource(device *DeviceInfo, config CaptureConfig) (Source, error)
	Close()
}

// Source delivers raw capture frames to a sink until stopped.
type Source interface {
	Start(sink Sink) error
	Stop()
	Close()
	DeviceName() string
}

// device is the platform half of a Source. start is only called while
// stopped and stop only while started.
type device interface {
	start(sink Sink) error
	stop()
	close()
	name() string
}

// capture adds the idempotent start/stop contract and the permission gate
// on top of a platform device.
type capture struct {
	dev     device
	allowed func() bool

	mu      sync.Mutex
	running bool
}

func newCapture(dev device, config CaptureConfig) *capture {
	return &capture{dev: dev, allowed: config.Allowed}
}

func (c *capture) Start(sink Sink) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if c.allowed != nil && !c.allowed() {
		return ErrPermissionDenied
	}
	if err := c.dev.start(sink); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceStartFailed, err)
	}
	c.running = true
	return nil
}

func (c *capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.dev.stop()
	c.running = false
}

func (c *capture) Close() {
	c.Stop()
	c.dev.close()
}

func (c *capture) DeviceName() string {
	return c.dev.name()
}
