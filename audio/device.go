package audio

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

var ErrNoDevices = errors.New("no capture devices found")

// FindDevice resolves a configured device name. An empty name selects the
// system default (nil). Matching is case-insensitive, exact names win over
// substring matches.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	return matchDevice(devices, name)
}

func matchDevice(devices []DeviceInfo, name string) (*DeviceInfo, error) {
	want := strings.ToLower(name)
	var partial []int
	for i, d := range devices {
		if strings.ToLower(d.Name) == want || d.ID == name {
			return &devices[i], nil
		}
		if strings.Contains(strings.ToLower(d.Name), want) {
			partial = append(partial, i)
		}
	}
	switch len(partial) {
	case 0:
		return nil, fmt.Errorf("no capture device matches %q", name)
	case 1:
		return &devices[partial[0]], nil
	}
	return nil, fmt.Errorf("%q matches %d capture devices, be more specific", name, len(partial))
}

// SelectDevice presents an interactive picker on the terminal. With a
// single device it returns that device without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	if len(devices) == 1 {
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	p := picker{devices: devices}
	p.render()

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		switch p.key(buf[:n]) {
		case pickerConfirm:
			fmt.Print("\r\n")
			return &devices[p.cursor], nil
		case pickerAbort:
			fmt.Print("\r\n")
			return nil, errors.New("device selection cancelled")
		}
		fmt.Printf("\x1b[%dA", len(devices)+2)
		p.render()
	}
}

type pickerResult int

const (
	pickerContinue pickerResult = iota
	pickerConfirm
	pickerAbort
)

type picker struct {
	devices []DeviceInfo
	cursor  int
}

func (p *picker) key(in []byte) pickerResult {
	if len(in) == 1 {
		switch in[0] {
		case '\r':
			return pickerConfirm
		case 3, 'q':
			return pickerAbort
		case 'j':
			p.move(1)
		case 'k':
			p.move(-1)
		}
		return pickerContinue
	}
	if len(in) == 3 && in[0] == 0x1b && in[1] == '[' {
		switch in[2] {
		case 'A':
			p.move(-1)
		case 'B':
			p.move(1)
		}
	}
	return pickerContinue
}

func (p *picker) move(delta int) {
	p.cursor = max(0, min(len(p.devices)-1, p.cursor+delta))
}

func (p *picker) render() {
	fmt.Print("\r\x1b[J")
	fmt.Print("Select input device (↑/↓, Enter to confirm):\r\n\r\n")
	for i, d := range p.devices {
		tag := ""
		if IsBluetooth(d.Name) {
			tag = " \x1b[33m[⚠ Lower audio quality]\x1b[0m"
		}
		if i == p.cursor {
			fmt.Printf("  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, tag)
		} else {
			fmt.Printf("    %s%s\r\n", d.Name, tag)
		}
	}
}
