//go:build linux

package typer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ioctl constants from linux/uinput.h
const (
	uiSetEvbit  = 0x40045564 // UI_SET_EVBIT
	uiSetKeybit = 0x40045565 // UI_SET_KEYBIT
	uiDevCreate = 0x5501     // UI_DEV_CREATE
)

// linux/input-event-codes.h
const (
	evSyn = 0x00
	evKey = 0x01

	keyLeftCtrl  = 29
	keyLeftShift = 42
	keyV         = 47
)

const (
	busUSB     = 0x03
	deviceName = "opentranscribe-kbd"
)

type inputEvent struct {
	Time  syscall.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type uinputUserDev struct {
	Name         [80]byte
	ID           inputID
	FfEffectsMax uint32
	Absmax       [64]int32
	Absmin       [64]int32
	Absfuzz      [64]int32
	Absflat      [64]int32
}

// uinputKeyboard is a virtual keyboard created through /dev/uinput. It works
// under X11 and Wayland alike.
type uinputKeyboard struct {
	once sync.Once
	err  error
	f    *os.File
}

func newKeyboard() keyboard { return &uinputKeyboard{} }

func uinputPath() (string, error) {
	for _, p := range []string{"/dev/uinput", "/dev/input/uinput"} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.New("uinput device not found, try: sudo modprobe uinput")
}

func ioctl(f *os.File, req, arg uintptr) error {
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), req, arg); errno != 0 {
		return errno
	}
	return nil
}

func (k *uinputKeyboard) init() error {
	k.once.Do(func() {
		k.f, k.err = createDevice()
	})
	return k.err
}

func createDevice() (*os.File, error) {
	path, err := uinputPath()
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, os.ModeDevice)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*os.File, error) {
		f.Close()
		return nil, fmt.Errorf("uinput setup: %w", err)
	}

	if err := ioctl(f, uiSetEvbit, evKey); err != nil {
		return fail(err)
	}
	if err := ioctl(f, uiSetEvbit, evSyn); err != nil {
		return fail(err)
	}
	// Register every standard key so udev classifies the device as a keyboard.
	for i := uintptr(0); i < 256; i++ {
		if err := ioctl(f, uiSetKeybit, i); err != nil {
			return fail(err)
		}
	}

	dev := uinputUserDev{}
	copy(dev.Name[:], deviceName)
	dev.ID = inputID{Bustype: busUSB, Vendor: 0x1234, Product: 0x5679, Version: 1}
	if err := binary.Write(f, binary.LittleEndian, &dev); err != nil {
		return fail(err)
	}
	if err := ioctl(f, uiDevCreate, 0); err != nil {
		return fail(err)
	}
	// compositors need a moment to pick up a new input device
	time.Sleep(200 * time.Millisecond)
	return f, nil
}

func (k *uinputKeyboard) write(code uint16, value int32) error {
	ev := inputEvent{Type: evKey, Code: code, Value: value}
	if err := binary.Write(k.f, binary.LittleEndian, &ev); err != nil {
		return err
	}
	return binary.Write(k.f, binary.LittleEndian, &inputEvent{Type: evSyn})
}

func (k *uinputKeyboard) chord(mod, code uint16, settle time.Duration) error {
	steps := []struct {
		code  uint16
		value int32
	}{{mod, 1}, {code, 1}, {code, 0}, {mod, 0}}
	for _, s := range steps {
		if err := k.write(s.code, s.value); err != nil {
			return err
		}
		time.Sleep(settle)
	}
	return nil
}

func (k *uinputKeyboard) tap(kk key) error {
	code := uint16(kk.code)
	if kk.shift {
		return k.chord(keyLeftShift, code, 0)
	}
	if err := k.write(code, 1); err != nil {
		return err
	}
	return k.write(code, 0)
}

func (k *uinputKeyboard) paste() error {
	return k.chord(keyLeftCtrl, keyV, 5*time.Millisecond)
}

// US layout scancodes.
// a=30, b=48, c=46, d=32, e=18, f=33, g=34, h=35, i=23, j=36,
// k=37, l=38, m=50, n=49, o=24, p=25, q=16, r=19, s=31, t=20,
// u=22, v=47, w=17, x=45, y=21, z=44
var letterKeys = [26]int{
	30, 48, 46, 32, 18, 33, 34, 35, 23, 36,
	37, 38, 50, 49, 24, 25, 16, 19, 31, 20,
	22, 47, 17, 45, 21, 44,
}

// 0=11, 1=2, 2=3, ..., 9=10
var digitKeys = [10]int{11, 2, 3, 4, 5, 6, 7, 8, 9, 10}

var punctKeys = map[rune]key{
	' ': {57, false}, '\n': {28, false}, '\t': {15, false},
	'.': {52, false}, ',': {51, false}, '/': {53, false},
	';': {39, false}, '\'': {40, false}, '[': {26, false},
	']': {27, false}, '-': {12, false}, '=': {13, false},
	'\\': {43, false}, '`': {41, false},
	'!': {2, true}, '@': {3, true}, '#': {4, true},
	'$': {5, true}, '%': {6, true}, '^': {7, true},
	'&': {8, true}, '*': {9, true}, '(': {10, true},
	')': {11, true}, '_': {12, true}, '+': {13, true},
	'{': {26, true}, '}': {27, true}, '|': {43, true},
	':': {39, true}, '"': {40, true}, '<': {51, true},
	'>': {52, true}, '?': {53, true}, '~': {41, true},
}

func (k *uinputKeyboard) lookup(r rune) (key, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return key{letterKeys[r-'a'], false}, true
	case r >= 'A' && r <= 'Z':
		return key{letterKeys[r-'A'], true}, true
	case r >= '0' && r <= '9':
		return key{digitKeys[r-'0'], false}, true
	}
	kk, ok := punctKeys[r]
	return kk, ok
}

// Verify creates the virtual keyboard, sends Ctrl+V and reads it back from
// the kernel input layer to confirm delivery.
func Verify() (string, error) {
	k := &uinputKeyboard{}
	if err := k.init(); err != nil {
		return "", fmt.Errorf("uinput init: %w", err)
	}
	defer k.f.Close()

	evdevPath, err := findEvdev(deviceName)
	if err != nil {
		return "", err
	}
	evdev, err := os.Open(evdevPath)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %w", evdevPath, err)
	}
	defer evdev.Close()

	if err := k.paste(); err != nil {
		return "", fmt.Errorf("paste send: %w", err)
	}

	type result struct {
		ctrl, v bool
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		buf := make([]byte, 24*32)
		var r result
		n, err := evdev.Read(buf)
		if err != nil {
			r.err = err
			ch <- r
			return
		}
		for i := 0; i+24 <= n; i += 24 {
			if binary.LittleEndian.Uint16(buf[i+16:]) != evKey {
				continue
			}
			switch binary.LittleEndian.Uint16(buf[i+18:]) {
			case keyLeftCtrl:
				r.ctrl = true
			case keyV:
				r.v = true
			}
		}
		ch <- r
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("reading events: %w", r.err)
		}
		if !r.ctrl || !r.v {
			return "", fmt.Errorf("missing events (ctrl=%v, v=%v)", r.ctrl, r.v)
		}
		return fmt.Sprintf("keystrokes verified via %s", evdevPath), nil
	case <-time.After(500 * time.Millisecond):
		return "", errors.New("timed out waiting for keystroke events")
	}
}

func findEvdev(name string) (string, error) {
	entries, err := os.ReadDir("/sys/class/input")
	if err != nil {
		return "", fmt.Errorf("cannot scan input devices: %w", err)
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		data, err := os.ReadFile(filepath.Join("/sys/class/input", e.Name(), "device", "name"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(data)) == name {
			return filepath.Join("/dev/input", e.Name()), nil
		}
	}
	return "", fmt.Errorf("%s evdev device not found", name)
}

// Available reports whether the virtual keyboard can be created.
func Available() error {
	path, err := uinputPath()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("%s: %w (add your user to the input group or adjust udev rules)", path, err)
	}
	return f.Close()
}
